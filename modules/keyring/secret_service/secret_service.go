// Package secret_service is a minimal client for the freedesktop.org Secret
// Service D-Bus API (org.freedesktop.secrets), covering just enough of the
// interface for the keyring package's unix credential provider: open an
// unauthenticated "plain" session, resolve the default login collection,
// create/search/fetch/delete items.
//
// See: https://specifications.freedesktop.org/secret-service-spec/latest/
package secret_service

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	dbusServiceName  = "org.freedesktop.secrets"
	dbusPath         = dbus.ObjectPath("/org/freedesktop/secrets")
	serviceInterface = "org.freedesktop.Secret.Service"
	collInterface    = "org.freedesktop.Secret.Collection"
	itemInterface    = "org.freedesktop.Secret.Item"

	loginCollectionPath = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")
)

var ErrNotSupported = errors.New("secret service: no reply from D-Bus session, is a secret service agent running?")

type SecretService struct {
	conn *dbus.Conn
}

type Session struct {
	path dbus.ObjectPath
}

func (s Session) Path() dbus.ObjectPath { return s.path }

type Collection struct {
	path dbus.ObjectPath
}

func (c Collection) Path() dbus.ObjectPath { return c.path }

type Secret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

func NewSecret(session dbus.ObjectPath, value string) Secret {
	return Secret{
		Session:     session,
		Parameters:  []byte{},
		Value:       []byte(value),
		ContentType: "text/plain; charset=utf8",
	}
}

// NewSecretService connects to the session bus and resolves the Secret
// Service object. It fails fast (rather than blocking) when no agent (e.g.
// gnome-keyring-daemon, KWallet's secret-service shim) owns the well-known
// name.
func NewSecretService() (*SecretService, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	var hasOwner bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, dbusServiceName).Store(&hasOwner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("query secret service owner: %w", err)
	}
	if !hasOwner {
		conn.Close()
		return nil, ErrNotSupported
	}
	return &SecretService{conn: conn}, nil
}

func (s *SecretService) obj(path dbus.ObjectPath) dbus.BusObject {
	return s.conn.Object(dbusServiceName, path)
}

// OpenSession opens an unauthenticated "plain" algorithm session, adequate
// for a local session bus where transport security is provided by Unix
// socket permissions rather than the Secret Service's own encryption.
func (s *SecretService) OpenSession() (Session, error) {
	var (
		output dbus.Variant
		result dbus.ObjectPath
	)
	call := s.obj(dbusPath).Call(serviceInterface+".OpenSession", 0, "plain", dbus.MakeVariant(""))
	if call.Err != nil {
		return Session{}, fmt.Errorf("open session: %w", call.Err)
	}
	if err := call.Store(&output, &result); err != nil {
		return Session{}, fmt.Errorf("open session: %w", err)
	}
	return Session{path: result}, nil
}

func (s *SecretService) Close(session Session) error {
	return s.obj(session.path).Call("org.freedesktop.Secret.Session.Close", 0).Err
}

func (s *SecretService) GetLoginCollection() Collection {
	return Collection{path: loginCollectionPath}
}

func (s *SecretService) Unlock(path dbus.ObjectPath) error {
	var (
		unlocked []dbus.ObjectPath
		prompt   dbus.ObjectPath
	)
	call := s.obj(dbusPath).Call(serviceInterface+".Unlock", 0, []dbus.ObjectPath{path})
	if call.Err != nil {
		return fmt.Errorf("unlock: %w", call.Err)
	}
	if err := call.Store(&unlocked, &prompt); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	if prompt != dbus.ObjectPath("/") {
		return s.runPrompt(prompt)
	}
	return nil
}

func (s *SecretService) runPrompt(prompt dbus.ObjectPath) error {
	signal := make(chan *dbus.Signal, 1)
	s.conn.Signal(signal)
	defer s.conn.RemoveSignal(signal)
	if err := s.conn.AddMatchSignal(dbus.WithMatchObjectPath(prompt)); err != nil {
		return fmt.Errorf("await prompt: %w", err)
	}
	if call := s.obj(prompt).Call("org.freedesktop.Secret.Prompt.Prompt", 0, ""); call.Err != nil {
		return fmt.Errorf("prompt: %w", call.Err)
	}
	sig := <-signal
	if len(sig.Body) < 1 {
		return errors.New("prompt: empty completion signal")
	}
	if dismissed, ok := sig.Body[0].(bool); ok && dismissed {
		return errors.New("prompt dismissed by user")
	}
	return nil
}

func (s *SecretService) CreateItem(collection Collection, label string, attributes map[string]string, secret Secret) error {
	properties := map[string]dbus.Variant{
		"org.freedesktop.Secret.Item.Label":      dbus.MakeVariant(label),
		"org.freedesktop.Secret.Item.Attributes": dbus.MakeVariant(attributes),
	}
	var (
		item   dbus.ObjectPath
		prompt dbus.ObjectPath
	)
	call := s.obj(collection.path).Call(collInterface+".CreateItem", 0, properties, secret, true)
	if call.Err != nil {
		return fmt.Errorf("create item: %w", call.Err)
	}
	if err := call.Store(&item, &prompt); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

func (s *SecretService) SearchItems(collection Collection, attributes map[string]string) ([]dbus.ObjectPath, error) {
	var results []dbus.ObjectPath
	call := s.obj(collection.path).Call(collInterface+".SearchItems", 0, attributes)
	if call.Err != nil {
		return nil, fmt.Errorf("search items: %w", call.Err)
	}
	if err := call.Store(&results); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return results, nil
}

func (s *SecretService) GetSecret(item dbus.ObjectPath, session dbus.ObjectPath) (Secret, error) {
	var secret Secret
	call := s.obj(item).Call(itemInterface+".GetSecret", 0, session)
	if call.Err != nil {
		return Secret{}, fmt.Errorf("get secret: %w", call.Err)
	}
	if err := call.Store(&secret); err != nil {
		return Secret{}, fmt.Errorf("get secret: %w", err)
	}
	return secret, nil
}

func (s *SecretService) Delete(item dbus.ObjectPath) error {
	var prompt dbus.ObjectPath
	call := s.obj(item).Call(itemInterface+".Delete", 0)
	if call.Err != nil {
		return fmt.Errorf("delete item: %w", call.Err)
	}
	if err := call.Store(&prompt); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

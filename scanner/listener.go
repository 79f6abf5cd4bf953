package scanner

import (
	"errors"
	"fmt"

	"github.com/srg/bletrack/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Listener consumes parsed devices.
//
// ParseDevice reports whether the listener claimed the device. OnScanEnd is
// called once per finished scan session, before the next one starts.
// Both run on the main loop and must not block.
type Listener interface {
	ParseDevice(dev *device.Device) bool
	OnScanEnd()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	Parse   func(dev *device.Device) bool
	ScanEnd func()
}

func (f ListenerFuncs) ParseDevice(dev *device.Device) bool {
	if f.Parse == nil {
		return false
	}
	return f.Parse(dev)
}

func (f ListenerFuncs) OnScanEnd() {
	if f.ScanEnd != nil {
		f.ScanEnd()
	}
}

// ErrDuplicateListener is returned when a listener name is registered twice.
var ErrDuplicateListener = errors.New("listener already registered")

// Registry keeps listeners by name in registration order. It is used only
// from the main loop and is not safe for concurrent use.
type Registry struct {
	listeners *orderedmap.OrderedMap[string, Listener]
}

func NewRegistry() *Registry {
	return &Registry{listeners: orderedmap.New[string, Listener]()}
}

// Register appends l under name.
func (r *Registry) Register(name string, l Listener) error {
	if l == nil {
		return fmt.Errorf("listener %q is nil", name)
	}
	if _, exists := r.listeners.Get(name); exists {
		return fmt.Errorf("%w: %q", ErrDuplicateListener, name)
	}
	r.listeners.Set(name, l)
	return nil
}

// Get returns the listener registered under name.
func (r *Registry) Get(name string) (Listener, bool) {
	return r.listeners.Get(name)
}

// Names lists the registered names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.listeners.Len())
	for p := r.listeners.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

func (r *Registry) Len() int {
	return r.listeners.Len()
}

// Dispatch offers dev to every listener in registration order and reports
// whether any of them claimed it. A claim does not stop the dispatch.
func (r *Registry) Dispatch(dev *device.Device) bool {
	found := false
	for p := r.listeners.Oldest(); p != nil; p = p.Next() {
		if p.Value.ParseDevice(dev) {
			found = true
		}
	}
	return found
}

// NotifyScanEnd calls OnScanEnd on every listener in registration order.
func (r *Registry) NotifyScanEnd() {
	for p := r.listeners.Oldest(); p != nil; p = p.Next() {
		p.Value.OnScanEnd()
	}
}

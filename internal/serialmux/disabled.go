package serialmux

import (
	"context"
	"net/http"
)

// DisabledSerialMux stands in when no GPS receiver is attached. Subscribers
// never receive a line, commands are accepted and dropped, and the admin
// routes report the mux as disabled.
type DisabledSerialMux struct {
	subs *registry
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: newRegistry()}
}

// Disabled reports that no device is behind this mux.
func (d *DisabledSerialMux) Disabled() bool { return true }

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add() }

func (d *DisabledSerialMux) Unsubscribe(id string) { d.subs.remove(id) }

func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Stats() LineStats { return LineStats{Disabled: true} }

func (d *DisabledSerialMux) Close() error {
	d.subs.closeAll()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}

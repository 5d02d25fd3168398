package main

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/keystore"
	"github.com/rigado/blehci/linux/hci"
	"github.com/rigado/blehci/linux/hci/cmd"
	"github.com/rigado/blehci/linux/hci/evt"
	"github.com/rigado/blehci/linux/hci/handler"
	"github.com/rigado/blehci/linux/hci/privacy"
	"golang.org/x/sync/errgroup"
)

// run brings up the controller, applies the privacy policy and reports address changes
// to out until ctx is done or a fatal error is dispatched.
func run(ctx context.Context, cfg Config, out io.Writer) error {
	logger := blehci.ComponentLogger("hcihost")

	fatal := make(chan error, 1)
	onError := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	h, err := hci.NewHCI(cfg.deviceOptions(onError)...)
	if err != nil {
		return errors.Wrap(err, "can't create hci")
	}
	defer h.Close()
	if err := h.Init(ctx); err != nil {
		return errors.Wrap(err, "can't init hci")
	}
	logger.Infof("controller %v, filter accept list %d, resolving list %d",
		h.Addr(), h.FilterAcceptListSize(), h.ResolvingListSize())

	vendor, err := cfg.vendorCommands()
	if err != nil {
		return err
	}
	for _, c := range vendor {
		if _, err := h.SendVendorCommand(c); err != nil {
			return errors.Wrapf(err, "%v", c)
		}
	}

	id, created, err := keystore.LoadOrCreate(keystore.New(cfg.Keystore), h.Addr(), rand.Reader)
	if err != nil {
		return errors.Wrap(err, "can't load identity")
	}
	if created {
		logger.Infof("generated identity for %v", h.Addr())
	}

	exec := handler.New()
	defer exec.Close()

	var m *privacy.Manager
	enqueue := func(c cmd.Command) {
		err := h.EnqueueCommand(c, func(e evt.CommandComplete) {
			if err := m.OnCommandComplete(e); err != nil {
				logger.Debugf("completion after close: %v", err)
			}
		})
		if err != nil {
			onError(errors.Wrapf(err, "can't enqueue %v", c))
		}
	}
	m = privacy.New(enqueue, exec, h.Addr(), h.FilterAcceptListSize(), h.ResolvingListSize(),
		privacy.WithErrorHandler(onError))
	defer m.Close()

	policy, fixed, irk := resolveIdentity(cfg.Privacy, h.Addr(), id)
	if err := m.SetPrivacyPolicy(policy, fixed, irk, cfg.Privacy.MinInterval, cfg.Privacy.MaxInterval); err != nil {
		return err
	}

	st := newStatusClient(m, policy)
	if _, err := m.Register(st); err != nil {
		return err
	}
	defer m.Unregister(st)
	if err := st.write(out, "registered"); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-fatal:
			return err
		}
	})
	g.Go(func() error {
		return st.run(gctx.Done(), out)
	})
	return g.Wait()
}

// resolveIdentity picks the fixed address and IRK for policy, preferring configured values
// over the stored identity.
func resolveIdentity(pc PrivacyConfig, public blehci.Address, id keystore.Identity) (privacy.Policy, blehci.AddressWithType, [16]byte) {
	irk := id.IRK
	if pc.IRK != nil {
		irk = *pc.IRK
	}

	var fixed blehci.AddressWithType
	switch pc.Policy {
	case privacy.UsePublicAddress:
		fixed = blehci.AddressWithType{Address: public, Type: blehci.PublicDeviceAddress}
	case privacy.UseStaticAddress:
		fixed = blehci.AddressWithType{Address: id.StaticAddress, Type: blehci.RandomDeviceAddress}
		if pc.StaticAddress != nil {
			fixed.Address = *pc.StaticAddress
		}
	}
	return pc.Policy, fixed, [16]byte(irk)
}

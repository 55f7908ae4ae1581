package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netaudit/shapeaudit/internal/audit"
	"github.com/netaudit/shapeaudit/internal/device"
)

// Commands run on every device, in order.
const (
	CmdHostname  = "show run | include hostname"
	CmdBandwidth = "show run | include ^ bandwidth"
	CmdShape     = "show run | include shape average"
)

// AuditorConfig holds the per-device procedure settings.
type AuditorConfig struct {
	Location        *time.Location // timestamps are written in this zone, nil = UTC
	StrictTolerance bool
	DeviceTimeout   time.Duration // 0 = unbounded
	Now             func() time.Time
}

// Auditor runs the audit procedure against a single device and turns the
// result into a Record. It is safe for concurrent use.
type Auditor struct {
	dialer device.Dialer
	log    logrus.FieldLogger

	location      *time.Location
	strict        bool
	deviceTimeout time.Duration
	now           func() time.Time
}

// NewAuditor creates an Auditor.
func NewAuditor(dialer device.Dialer, log logrus.FieldLogger, cfg AuditorConfig) *Auditor {
	a := &Auditor{
		dialer:        dialer,
		log:           log,
		location:      cfg.Location,
		strict:        cfg.StrictTolerance,
		deviceTimeout: cfg.DeviceTimeout,
		now:           cfg.Now,
	}
	if a.location == nil {
		a.location = time.UTC
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Audit contacts address and returns its record. It never returns nil and
// never panics; every failure becomes a Fail record.
func (a *Auditor) Audit(ctx context.Context, address string, th *Throttler) *audit.Record {
	return a.finalize(a.run(ctx, address, th))
}

// Canceled returns the record for an address that was never contacted
// because the audit was interrupted.
func (a *Auditor) Canceled(address string) *audit.Record {
	rec := &audit.Record{
		Address:      address,
		Bandwidth:    audit.Marker(),
		ShapeAverage: audit.Marker(),
		Status:       audit.StatusFail,
		Comment:      address + " - audit interrupted before device was contacted",
		Fault:        audit.FaultCanceled,
		Timestamp:    a.stamp(),
	}
	a.log.WithFields(logrus.Fields{
		"address": address,
		"status":  rec.Status,
		"fault":   rec.Fault,
	}).Warn("device not audited")
	return rec
}

func (a *Auditor) run(ctx context.Context, address string, th *Throttler) (res deviceResult) {
	res.address = address
	var hostname string

	defer func() {
		if r := recover(); r != nil {
			res.fault = &Fault{Kind: audit.FaultInternal, Hostname: hostname, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if a.deviceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deviceTimeout)
		defer cancel()
	}

	sess, err := a.dialer.Dial(ctx, address)
	if err != nil {
		th.RecordFailure()
		res.fault = &Fault{Kind: classify(err), Err: err}
		return res
	}
	th.RecordSuccess()
	defer func() {
		if err := sess.Close(); err != nil {
			a.log.WithField("address", address).Warnf("closing session: %v", err)
		}
	}()

	if err := sess.Enable(ctx); err != nil {
		res.fault = &Fault{Kind: classify(err), Err: err}
		return res
	}

	hostText, err := sess.Run(ctx, CmdHostname)
	if err != nil {
		res.fault = &Fault{Kind: classify(err), Err: err}
		return res
	}
	hostname = audit.ParseHostname(hostText)

	var bwText, shapeText string
	if !audit.IsBestEffort(hostname) {
		if bwText, err = sess.Run(ctx, CmdBandwidth); err != nil {
			res.fault = &Fault{Kind: classify(err), Hostname: hostname, Err: err}
			return res
		}
		if shapeText, err = sess.Run(ctx, CmdShape); err != nil {
			res.fault = &Fault{Kind: classify(err), Hostname: hostname, Err: err}
			return res
		}
	}

	o, err := audit.Evaluate(hostText, bwText, shapeText)
	if err != nil {
		res.fault = &Fault{Kind: classify(err), Hostname: hostname, Err: err}
		return res
	}
	res.outcome = audit.ApplyTolerance(o, a.strict)
	return res
}

// finalize builds the record. It runs after the session is closed so the
// timestamp marks the end of the device's audit.
func (a *Auditor) finalize(res deviceResult) *audit.Record {
	addr := res.address
	rec := &audit.Record{Address: addr}

	if f := res.fault; f != nil {
		rec.Hostname = f.Hostname
		rec.Bandwidth = audit.Marker()
		rec.ShapeAverage = audit.Marker()
		rec.Status = audit.StatusFail
		rec.Fault = f.Kind

		var ce *device.ConnectError
		if errors.As(f.Err, &ce) {
			rec.Comment = fmt.Sprintf("%s - Failed to connect to %s: %v", addr, addr, ce.Err)
		} else {
			rec.Comment = fmt.Sprintf("%s - Exception on %s - %s: %v", addr, addr, f.Hostname, f.Err)
		}
	} else {
		o := res.outcome
		rec.Hostname = o.Hostname
		rec.Bandwidth = o.Bandwidth
		rec.ShapeAverage = o.ShapeAverage
		rec.Status = o.Status
		rec.Comment = addr + " - " + o.Comment
		rec.Reason = o.Reason
	}
	rec.Timestamp = a.stamp()

	a.logRecord(rec)
	return rec
}

func (a *Auditor) stamp() time.Time {
	return a.now().In(a.location)
}

func (a *Auditor) logRecord(rec *audit.Record) {
	fields := logrus.Fields{
		"address":  rec.Address,
		"hostname": rec.Hostname,
		"status":   rec.Status,
	}
	if rec.Fault != audit.FaultNone {
		fields["fault"] = rec.Fault
		a.log.WithFields(fields).Error(rec.Comment)
		return
	}
	fields["reason"] = rec.Reason
	if rec.Reason.Compliant() {
		a.log.WithFields(fields).Info(rec.Comment)
		return
	}
	a.log.WithFields(fields).Error(rec.Comment)
}

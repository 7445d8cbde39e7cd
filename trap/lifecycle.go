package trap

import (
	"go.uber.org/zap"

	"github.com/zhiqian1027/zerovm/session"
)

func exitHandle(d *Dispatcher, v *vector) int32 {
	return d.exit(int64(v[2]))
}

// exit records the guest exit code and finishes the session. Control
// never returns to guest code: the session is terminated and any later
// dispatch is a host programming error.
func (d *Dispatcher) exit(code int64) int32 {
	r := &d.sess.Report
	r.UserCode = code
	if r.HostCode == 0 {
		r.State = session.StateOK
	}
	d.trace.Info("session returned",
		zap.Int("node", d.sess.Node), zap.Int64("code", code))
	d.sess.Terminate()
	return RetOK
}

func forkHandle(d *Dispatcher, v *vector) int32 {
	if d.sess.Spawner == nil {
		d.trace.Event("fork requested without a spawner")
		return RetPerm
	}
	ret := d.sess.Spawner.Spawn(d.sess)
	if ret != 0 {
		// failed fork has no side effects; the session keeps running
		return ret
	}
	// successful fork ends the current session like Exit(0)
	d.trace.Leave(OpFork.String(), 0, nil)
	d.trace.Leave(OpExit.String(), 0, nil)
	return d.exit(0)
}

func testHandle(d *Dispatcher, v *vector) int32 {
	if d.sess.Saver != nil {
		if err := d.sess.Saver.Save(d.sess); err != nil {
			d.trace.Event("session checkpoint failed", zap.Error(err))
		}
	}
	return d.exit(0)
}

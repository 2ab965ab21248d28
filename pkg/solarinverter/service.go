// Solarinverter is the Modbus-TCP alternative to the HTTP power-flow
// source, for inverters that only expose holding registers. It reports
// production only.
package solarinverter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/fetcher"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
)

var (
	ErrModbusNotConfigured = fmt.Errorf("modbus not configured") // may be intended
	ErrModbusReadFailed    = fmt.Errorf("modbus read failed")
	ErrModbusNotConnected  = fmt.Errorf("modbus not connected")
	ErrShortRegisterRead   = fmt.Errorf("short register read")
)

// Active power, signed 32 bit watts over two holding registers.
const activePowerRegister = 32080

// Config for the Modbus source. WlanConnectionId is optional; when set a
// failed ping triggers `nmcli connection up`.
type Config struct {
	Host             string
	Port             int
	SlaveId          byte
	Timeout          time.Duration
	WlanConnectionId string
}

type Reader struct {
	cfg   Config
	clock timebase.Clock

	mu           sync.Mutex
	lastReadWatt int32
	lastReadTime time.Time

	// swapped in tests
	readRegisters func(ctx context.Context) ([]byte, error)
	ping          func(host string) (bool, time.Duration, error)
}

var _ fetcher.Fetcher = (*Reader)(nil)

func NewReader(cfg Config, clock timebase.Clock) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if clock == nil {
		clock = timebase.SystemClock{}
	}
	r := &Reader{cfg: cfg, clock: clock, ping: ping}
	r.readRegisters = r.readHoldingRegisters
	return r
}

// IsConfigured checks if the modbus configuration is set.
func (r *Reader) IsConfigured() bool {
	return r.cfg.Host != "" && r.cfg.Port != 0
}

func (r *Reader) Source() types.Source {
	return types.SourcePV
}

func (r *Reader) Fetch(ctx context.Context) (fetcher.Result, error) {
	start := time.Now()
	watt, err := r.ReadSolarData(ctx)
	latency := time.Since(start)
	if err != nil {
		kind := faults.Network
		if errors.Is(err, ErrShortRegisterRead) {
			kind = faults.Parse
		}
		return fetcher.Result{Latency: latency}, faults.Wrap(kind, err)
	}
	raw := types.Raw{
		types.KeyTimestamp: timebase.Format(r.clock.Now()),
		types.KeyPVPower:   units.WToKw(float64(watt)),
	}
	return fetcher.Result{Raw: raw, Latency: latency}, nil
}

// ReadSolarData returns the current active power in watts.
func (r *Reader) ReadSolarData(ctx context.Context) (int32, error) {
	if !r.IsConfigured() {
		return 0, ErrModbusNotConfigured
	}

	// Use cached reads to avoid spamming the poor inverter
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastReadTime.After(r.clock.Now().Add(-10 * time.Second)) {
		return r.lastReadWatt, nil
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, errors.Join(ErrModbusReadFailed, err)
		}
		if attempt > 0 {
			if err := r.tryReconnect(); err != nil {
				lastErr = fmt.Errorf("reconnect failed on attempt %d: %w", attempt+1, err)
				continue
			}
		}

		if ok, _, err := r.ping(r.cfg.Host); !ok || err != nil {
			lastErr = fmt.Errorf("ping failed on attempt %d: %w", attempt+1, err)
			if attempt < maxRetries-1 {
				sleep(ctx, 2*time.Second)
			}
			continue
		}

		result, err := r.readRegisters(ctx)
		if err != nil {
			lastErr = fmt.Errorf("read power failed on attempt %d: %w", attempt+1, err)
			if attempt < maxRetries-1 {
				sleep(ctx, 2*time.Second)
			}
			continue
		}

		power, err := DecodeActivePower(result)
		if err != nil {
			return 0, err
		}
		r.lastReadWatt = power
		r.lastReadTime = r.clock.Now()
		return power, nil
	}

	return 0, errors.Join(ErrModbusReadFailed, lastErr)
}

// DecodeActivePower reads a big-endian signed 32 bit value.
func DecodeActivePower(result []byte) (int32, error) {
	if len(result) < 4 {
		return 0, fmt.Errorf("%w: got %d bytes", ErrShortRegisterRead, len(result))
	}
	return int32(binary.BigEndian.Uint32(result[:4])), nil
}

func (r *Reader) readHoldingRegisters(ctx context.Context) ([]byte, error) {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port))
	handler.Timeout = r.cfg.Timeout
	handler.SlaveId = r.cfg.SlaveId

	if err := handler.Connect(); err != nil {
		handler.Close()
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer handler.Close()

	// The 2s delay after connecting causes everything to not implode as much
	sleep(ctx, 2*time.Second)
	client := modbus.NewClient(handler)
	return client.ReadHoldingRegisters(activePowerRegister, 2)
}

func (r *Reader) tryReconnect() error {
	// Check if already connected
	ok, _, err := r.ping(r.cfg.Host)
	if err == nil && ok {
		return nil
	}
	if r.cfg.WlanConnectionId == "" {
		return ErrModbusNotConnected
	}

	logging.For("solarinverter").Infof("Bringing up %s", r.cfg.WlanConnectionId)
	cmd := exec.Command("nmcli", "connection", "up", r.cfg.WlanConnectionId)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to bring up wifi connection: %w", err)
	}

	// Wait a bit for the connection to establish
	time.Sleep(5 * time.Second)

	ok, _, err = r.ping(r.cfg.Host)
	if err != nil {
		return err
	}
	if !ok {
		return ErrModbusNotConnected
	}
	return nil
}

func ping(host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	err = pinger.Run()
	if err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, fmt.Errorf("no response")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

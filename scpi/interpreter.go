package scpi

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/ardnew/usbtmc/pkg"
)

// DefaultIdentity is the *IDN? response when none is configured.
const DefaultIdentity = "ardnew,usbtmc,0,FW1.0\n"

const noError = "0,No error"

// Interpreter executes parsed commands against a small instrument
// model: an identity string, a voltage and frequency setting, and a
// one-deep error queue. It satisfies the protocol engine's command
// handler contract: queries and errors produce reply bytes, set
// commands and *RST produce none.
type Interpreter struct {
	mutex sync.RWMutex

	identity string
	voltage  float64
	freq     float64
	lastErr  string
}

// NewInterpreter returns an interpreter with default settings.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		identity: DefaultIdentity,
		lastErr:  noError,
	}
}

// SetIdentity overrides the *IDN? response.
func (in *Interpreter) SetIdentity(id string) {
	in.mutex.Lock()
	defer in.mutex.Unlock()
	in.identity = id
}

// Voltage returns the current voltage setting.
func (in *Interpreter) Voltage() float64 {
	in.mutex.RLock()
	defer in.mutex.RUnlock()
	return in.voltage
}

// Frequency returns the current frequency setting.
func (in *Interpreter) Frequency() float64 {
	in.mutex.RLock()
	defer in.mutex.RUnlock()
	return in.freq
}

// Handle executes one command and writes any reply into reply,
// returning the number of reply bytes. Set commands return 0.
func (in *Interpreter) Handle(cmd, reply []byte) int {
	c := Parse(string(cmd))

	pkg.LogDebug(pkg.ComponentSCPI, "command received",
		"kind", c.Kind.String(),
		"head", c.Head)

	switch c.Kind {
	case KindCommon:
		return in.handleCommon(c, reply)
	case KindQuery:
		return in.handleQuery(c, reply)
	case KindSet:
		return in.handleSet(c, reply)
	default:
		return in.fail(c, reply, "undefined header")
	}
}

func (in *Interpreter) handleCommon(c Command, reply []byte) int {
	switch c.Head {
	case "*RST":
		in.mutex.Lock()
		in.voltage = 0
		in.freq = 0
		in.lastErr = noError
		in.mutex.Unlock()
		return 0
	case "*CLS":
		in.mutex.Lock()
		in.lastErr = noError
		in.mutex.Unlock()
		return 0
	}
	return in.fail(c, reply, "undefined header")
}

func (in *Interpreter) handleQuery(c Command, reply []byte) int {
	// The error queue drains on read.
	switch c.Head {
	case "SYST:ERR", "SYSTEM:ERROR":
		in.mutex.Lock()
		text := in.lastErr + "\n"
		in.lastErr = noError
		in.mutex.Unlock()
		return copy(reply, text)
	}

	in.mutex.RLock()
	var text string
	known := true
	switch c.Head {
	case "*IDN":
		text = in.identity
	case "VOLT", "VOLTAGE":
		text = formatValue(in.voltage)
	case "FREQ", "FREQUENCY":
		text = formatValue(in.freq)
	default:
		known = false
	}
	in.mutex.RUnlock()

	if !known {
		return in.fail(c, reply, "undefined header")
	}
	return copy(reply, text)
}

func (in *Interpreter) handleSet(c Command, reply []byte) int {
	in.mutex.Lock()
	known := true
	switch c.Head {
	case "VOLT", "VOLTAGE":
		in.voltage = c.Arg
	case "FREQ", "FREQUENCY":
		in.freq = c.Arg
	default:
		known = false
	}
	in.mutex.Unlock()

	if !known {
		return in.fail(c, reply, "undefined header")
	}
	return 0
}

// fail records the error and writes an error reply.
func (in *Interpreter) fail(c Command, reply []byte, reason string) int {
	msg := fmt.Sprintf("-113,%s %q", reason, c.Raw)

	in.mutex.Lock()
	in.lastErr = msg
	in.mutex.Unlock()

	pkg.LogWarn(pkg.ComponentSCPI, "command rejected",
		"command", c.Raw,
		"reason", reason)

	return copy(reply, "ERROR: "+reason+"\n")
}

// formatValue renders a setting the way instruments report numbers.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64) + "\n"
}

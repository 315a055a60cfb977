package sh

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/msgs"
)

// ParseHandle parses a handle argument.
func ParseHandle(arg string) (handles.ID, error) {
	n, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid HANDLE %q", arg)
	}
	return handles.ID(n), nil
}

// ParseRegister parses a register argument, negative for common registers.
func ParseRegister(arg string) (int16, error) {
	n, err := strconv.ParseInt(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid REG %q", arg)
	}
	return int16(n), nil
}

// ParseCount parses an optional byte count argument.
func ParseCount(args []string, index int) (uint16, error) {
	if len(args) <= index {
		return 0, nil
	}
	n, err := strconv.ParseUint(args[index], 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid COUNT %q", args[index])
	}
	return uint16(n), nil
}

// ParseData parses data arguments: hex:0a0b for raw bytes, otherwise the
// arguments joined by spaces as text.
func ParseData(args []string) ([]byte, error) {
	str := strings.Join(args, " ")
	if strings.HasPrefix(str, "hex:") {
		data, err := hex.DecodeString(str[4:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return data, nil
	}
	return []byte(str), nil
}

func printable(data []byte) bool {
	for _, r := range string(data) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// FormatResult formats a Result for display.
func FormatResult(res *rdd.Result, outputJSON bool) (string, error) {
	if outputJSON {
		out, err := json.Marshal(msgs.NewResultEvent(res, time.Now()))
		return string(out), err
	}
	if !res.OK() {
		return fmt.Sprintf("%s %s#%d: %s (%d) %s", res.Op, res.UnitName, res.Handle,
			res.Status.Symbol(), int(res.Status), res.Status.Message()), nil
	}
	var data string
	switch {
	case len(res.Data) == 0:
	case printable(res.Data):
		data = " " + strconv.Quote(string(res.Data))
	default:
		data = " hex:" + hex.EncodeToString(res.Data)
	}
	if res.EventType == rdd.EventOpen {
		return fmt.Sprintf("open %s handle %d", res.UnitName, res.Handle), nil
	}
	return fmt.Sprintf("%s %s#%d reg=%d%s", res.EventType, res.UnitName, res.Handle, res.Register, data), nil
}

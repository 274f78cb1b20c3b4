package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// ChipID returns the value of the ID register.
func (d *Device) ChipID() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.detached {
		return d.lastID
	}
	return d.regs.Read(regs.ID)
}

// Command returns the value of the CMD register.
func (d *Device) Command() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.detached {
		return d.lastCmd
	}
	return d.regs.Read(regs.Cmd)
}

// ShowID renders the chip identity.
func (d *Device) ShowID() string {
	return fmt.Sprintf("Chip ID: 0x%x\n", d.ChipID())
}

// ShowCmd renders the command register.
func (d *Device) ShowCmd() string {
	return fmt.Sprintf("Command buffer: 0x%x\n", d.Command())
}

// ShowCount renders the interrupt counter.
func (d *Device) ShowCount() string {
	return fmt.Sprintf("Interrupt count: %d\n", d.counter.Read())
}

// StoreCmd parses input and writes it to the CMD register.
//
// Parameters:
//   - input: Unsigned integer text, see ParseCommand
//
// Returns:
//   - uint32: The value written
//   - error: ErrInvalidArgument (nothing written) or ErrDetached
func (d *Device) StoreCmd(input string) (uint32, error) {
	value, err := ParseCommand(input)
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.detached {
		return 0, ErrDetached
	}
	d.regs.Write(regs.Cmd, value)
	d.logger.Debug("command written", "device_id", d.id, "value", value)
	return value, nil
}

// ParseCommand parses command text as an unsigned 32-bit integer.
//
// The base is detected from the prefix: "0x" or "0X" for hexadecimal, a
// leading "0" for octal, decimal otherwise. One trailing newline and a
// leading '+' are accepted. Digit separators and the "0b"/"0o" prefixes
// are not.
//
// Returns:
//   - uint32: Parsed value
//   - error: ErrInvalidArgument wrapping the reason
func ParseCommand(input string) (uint32, error) {
	s := strings.TrimSuffix(input, "\n")
	s = strings.TrimPrefix(s, "+")

	if s == "" {
		return 0, fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	if strings.ContainsRune(s, '_') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidArgument, input)
	}
	if len(s) > 1 && s[0] == '0' {
		switch s[1] {
		case 'b', 'B', 'o', 'O':
			return 0, fmt.Errorf("%w: %q", ErrInvalidArgument, input)
		}
	}

	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidArgument, input)
	}
	return uint32(v), nil
}

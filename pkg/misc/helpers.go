package misc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LeoCommon/efiboot/pkg/log"
	"go.uber.org/zap"
)

func BoolPointer(b bool) *bool {
	return &b
}

const (
	StateOFF = "off"
	StateON  = "on"
)

// ParseOnOffState accepts on/off as well as the true/false spelling bootctl uses
func ParseOnOffState(state string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case StateON, "true":
		return BoolPointer(true), nil
	case StateOFF, "false":
		return BoolPointer(false), nil
	}

	return nil, fmt.Errorf("state was neither on nor off, got %v", state)
}

// ParseInt parses a decimal number and falls back to defVal on failure
func ParseInt(inStr string, defVal int, argument string) int {
	parsedValue, err := strconv.Atoi(inStr)
	if err != nil {
		log.Warn("bad value",
			zap.String("argument", argument),
			zap.String("value", inStr),
		)
		return defVal
	}
	return parsedValue
}

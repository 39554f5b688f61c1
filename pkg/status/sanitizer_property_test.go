package status

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_SanitizeIsIdempotent(t *testing.T) {
	s := NewMessageSanitizer()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("sanitizing twice equals sanitizing once", prop.ForAll(
		func(msg string) bool {
			once := s.Sanitize(msg)
			return s.Sanitize(once) == once
		},
		gen.AnyString(),
	))
	properties.TestingRun(t)
}

func TestProperty_SanitizeBoundsLength(t *testing.T) {
	s := NewMessageSanitizer()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("output never exceeds the cap plus marker", prop.ForAll(
		func(msg string) bool {
			return len(s.Sanitize(msg)) <= maxMessageLength+len("...[truncated]")
		},
		gen.AnyString(),
	))
	properties.Property("private ips never survive", prop.ForAll(
		func(a, b byte) bool {
			msg := "peer 192.168." + itoa(int(a)) + "." + itoa(int(b)) + " unreachable"
			return !strings.Contains(s.Sanitize(msg), "192.168.")
		},
		gen.UInt8(), gen.UInt8(),
	))
	properties.TestingRun(t)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

package connector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	EndpointQRCode       = "qr_code"
	EndpointVerifyQRCode = "verify_qr_code"
	EndpointPtwebqq      = "ptwebqq"
	EndpointVfwebqq      = "vfwebqq"
	EndpointLogin2       = "login2"
	EndpointFriendStatus = "friend_status"
	EndpointAccountInfo  = "account_info"
	EndpointPoll         = "poll"
)

var requiredEndpoints = []string{
	EndpointQRCode,
	EndpointVerifyQRCode,
	EndpointPtwebqq,
	EndpointVfwebqq,
	EndpointLogin2,
	EndpointFriendStatus,
	EndpointAccountInfo,
	EndpointPoll,
}

var slotPattern = regexp.MustCompile(`\{(\d+)\}`)

// Endpoint describes one web API operation: a URL template with positional
// slots {1}, {2}, ... and the headers a browser would have sent with it.
type Endpoint struct {
	URL     string `yaml:"url"`
	Referer string `yaml:"referer,omitempty"`
	Origin  string `yaml:"origin,omitempty"`

	name  string
	slots int
}

func (ep *Endpoint) Name() string {
	return ep.name
}

func (ep *Endpoint) compile(name string) error {
	ep.name = name
	if ep.URL == "" {
		return fmt.Errorf("endpoint %s has no url", name)
	}

	seen := make(map[int]bool)
	for _, match := range slotPattern.FindAllStringSubmatch(ep.URL, -1) {
		n, _ := strconv.Atoi(match[1])
		seen[n] = true
	}
	for i := 1; i <= len(seen); i++ {
		if !seen[i] {
			return fmt.Errorf("endpoint %s: slots must be numbered {1} to {%d}", name, len(seen))
		}
	}
	ep.slots = len(seen)

	return nil
}

// Build fills the URL template with args in order.
func (ep *Endpoint) Build(args ...any) (string, error) {
	if len(args) != ep.slots {
		return "", fmt.Errorf("endpoint %s takes %d arguments, got %d", ep.name, ep.slots, len(args))
	}

	return slotPattern.ReplaceAllStringFunc(ep.URL, func(slot string) string {
		n, _ := strconv.Atoi(strings.Trim(slot, "{}"))
		return fmt.Sprint(args[n-1])
	}), nil
}

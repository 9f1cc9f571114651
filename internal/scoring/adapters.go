package scoring

import "strings"

// Signal is the normalized output of one adapter call.
type Signal struct {
	Contribution int            `json:"contribution"`
	Reason       string         `json:"reason,omitempty"`
	Evidence     map[string]any `json:"evidence,omitempty"`
}

// Adapter is a pluggable external-signal scorer (email/IP/device
// reputation). Implementations must fail soft: empty input yields a zero
// Signal and no implementation may panic or perform I/O during Score —
// provider lookups happen when the adapter is built, not per call.
type Adapter interface {
	Name() string
	// Cap is the maximum contribution this adapter may return; the engine
	// clamps anything above it.
	Cap() int
	Score(value string) Signal
}

// AdapterSet binds adapters to the identifier each one consumes.
type AdapterSet struct {
	Email  []Adapter
	IP     []Adapter
	Device []Adapter
}

// DefaultAdapters returns the built-in reputation adapters. They are
// conservative local heuristics standing in for paid intel providers; a
// deployment swaps in real providers behind the same contract.
func DefaultAdapters() AdapterSet {
	return AdapterSet{
		Email:  []Adapter{NewDisposableEmailAdapter()},
		IP:     []Adapter{&IPReputationAdapter{}},
		Device: []Adapter{&DeviceCheckAdapter{}},
	}
}

// ---------------------------------------------------------------------------
// DisposableEmailAdapter: throwaway mailbox domains
// ---------------------------------------------------------------------------

// disposableDomains is a minimal builtin list; real deployments feed a
// provider dataset through NewDisposableEmailAdapterWithDomains.
var disposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"sharklasers.com",
	"yopmail.com",
	"trashmail.com",
}

type DisposableEmailAdapter struct {
	domains map[string]struct{}
}

// NewDisposableEmailAdapter builds the adapter with the builtin domain list.
func NewDisposableEmailAdapter() *DisposableEmailAdapter {
	return NewDisposableEmailAdapterWithDomains(disposableDomains)
}

// NewDisposableEmailAdapterWithDomains builds the adapter with a custom list.
func NewDisposableEmailAdapterWithDomains(domains []string) *DisposableEmailAdapter {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = struct{}{}
	}
	return &DisposableEmailAdapter{domains: set}
}

func (a *DisposableEmailAdapter) Name() string { return "email_intel" }
func (a *DisposableEmailAdapter) Cap() int     { return 20 }

func (a *DisposableEmailAdapter) Score(email string) Signal {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return Signal{}
	}
	domain := email[at+1:]
	if _, ok := a.domains[domain]; ok {
		return Signal{
			Contribution: 15,
			Reason:       "email_disposable_domain",
			Evidence:     map[string]any{"email_domain": domain, "provider": "builtin"},
		}
	}
	return Signal{Evidence: map[string]any{"email_domain": domain, "provider": "builtin"}}
}

// ---------------------------------------------------------------------------
// IPReputationAdapter: addresses no storefront buyer should present
// ---------------------------------------------------------------------------

type IPReputationAdapter struct{}

func (a *IPReputationAdapter) Name() string { return "ip_intel" }
func (a *IPReputationAdapter) Cap() int     { return 30 }

func (a *IPReputationAdapter) Score(ip string) Signal {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return Signal{}
	}
	// Private/link-local source addresses mean the order came through an
	// unexpected path (proxy misconfig or header forgery).
	for _, prefix := range []string{"10.", "192.168.", "169.254."} {
		if strings.HasPrefix(ip, prefix) {
			return Signal{
				Contribution: 10,
				Reason:       "ip_private_range",
				Evidence:     map[string]any{"ip_prefix": prefix, "provider": "builtin"},
			}
		}
	}
	return Signal{Evidence: map[string]any{"provider": "builtin"}}
}

// ---------------------------------------------------------------------------
// DeviceCheckAdapter: placeholder for a device-fingerprint provider
// ---------------------------------------------------------------------------

// DeviceCheckAdapter currently contributes nothing; it exists so the adapter
// slot is wired end to end and a provider integration only swaps this type.
type DeviceCheckAdapter struct{}

func (a *DeviceCheckAdapter) Name() string { return "device_check" }
func (a *DeviceCheckAdapter) Cap() int     { return 10 }

func (a *DeviceCheckAdapter) Score(deviceID string) Signal {
	if strings.TrimSpace(deviceID) == "" {
		return Signal{}
	}
	return Signal{Evidence: map[string]any{"device_id_present": true, "provider": "builtin"}}
}

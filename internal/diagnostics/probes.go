package diagnostics

import (
	"net/netip"
	"slices"
	"strings"

	"github.com/CaioWing/Tether/internal/transport"
)

// probeFunc evaluates one automatic check. It must not touch the device.
type probeFunc func(env transport.CapabilityProbe, req Request) Outcome

var probes = map[string]probeFunc{
	"capability":      probeCapability,
	"ipv4":            probeIPv4,
	"port-configured": probePortConfigured,
	"port-present":    probePortPresent,
}

func probeCapability(env transport.CapabilityProbe, req Request) Outcome {
	if env.Available(req.ConnectionType) {
		return OutcomePass
	}
	return OutcomeFail
}

// probeIPv4 accepts a dotted-quad IPv4 address, optionally with a port.
func probeIPv4(_ transport.CapabilityProbe, req Request) Outcome {
	addr := strings.TrimSpace(req.Address)
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		addr = ap.Addr().String()
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return OutcomeFail
	}
	return OutcomePass
}

func probePortConfigured(_ transport.CapabilityProbe, req Request) Outcome {
	if strings.TrimSpace(req.Address) == "" {
		return OutcomeFail
	}
	return OutcomePass
}

func probePortPresent(env transport.CapabilityProbe, req Request) Outcome {
	name := strings.TrimSpace(req.Address)
	if name == "" {
		return OutcomeFail
	}
	ports, err := env.Ports()
	if err != nil {
		return OutcomeUnknown
	}
	if slices.Contains(ports, name) {
		return OutcomePass
	}
	return OutcomeFail
}

package engine

import (
	"fmt"
	"strings"

	"tableside/internal/domain"
)

// Each service type has its own forward path; CANCELLED is reachable from any
// non-terminal status.
var statusFlow = map[string][]string{
	domain.ServicePickup: {
		domain.StatusPlaced,
		domain.StatusAccepted,
		domain.StatusCooking,
		domain.StatusReady,
		domain.StatusServed,
	},
	domain.ServiceDineIn: {
		domain.StatusPlaced,
		domain.StatusAccepted,
		domain.StatusCooking,
		domain.StatusReady,
		domain.StatusServed,
	},
	domain.ServiceDelivery: {
		domain.StatusPlaced,
		domain.StatusAccepted,
		domain.StatusCooking,
		domain.StatusReadyForPickup,
		domain.StatusOutForDelivery,
		domain.StatusDelivered,
	},
}

// StatusFlow returns the ordered forward path for a service type.
func StatusFlow(serviceType string) []string {
	return statusFlow[serviceType]
}

func checkTransition(serviceType, from, to string) error {
	if domain.TerminalStatuses[from] {
		return RuleError{Reason: fmt.Sprintf("order is already %s", strings.ToLower(from))}
	}
	if to == domain.StatusCancelled {
		return nil
	}
	flow, ok := statusFlow[serviceType]
	if !ok {
		return RuleError{Reason: fmt.Sprintf("unknown service type %q", serviceType)}
	}
	fi, ti := -1, -1
	for i, s := range flow {
		if s == from {
			fi = i
		}
		if s == to {
			ti = i
		}
	}
	if ti == -1 {
		return RuleError{Reason: fmt.Sprintf("status %s does not apply to %s orders", to, serviceType)}
	}
	if fi == -1 || ti != fi+1 {
		return RuleError{Reason: fmt.Sprintf("cannot move from %s to %s", from, to)}
	}
	return nil
}

// Progress maps a status onto the 0..1 range of its service flow, for
// step indicators.
func Progress(serviceType, status string) float64 {
	flow, ok := statusFlow[serviceType]
	if !ok || len(flow) < 2 {
		return 0
	}
	for i, s := range flow {
		if s == status {
			return float64(i) / float64(len(flow)-1)
		}
	}
	return 0
}

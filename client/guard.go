package client

// Route names the guard knows about
const (
	RouteLogin     = "login"
	RouteOTP       = "otp"
	RouteDashboard = "dashboard"
)

// Route is a navigation target
type Route struct {
	Name         string
	RequiresAuth bool
}

// Decision is the outcome of a navigation check. Redirect is empty when Allow is set.
type Decision struct {
	Allow    bool
	Redirect string
}

// StateSource is anything that reports a login state, usually a *Session
type StateSource interface {
	State() State
}

// Guard decides whether navigation to route may proceed in the current state
func Guard(source StateSource, route Route) Decision {
	switch source.State() {
	case PendingTwoFactor:
		if route.Name != RouteOTP {
			return Decision{Redirect: RouteOTP}
		}
	case Anonymous:
		// Without a pending challenge the OTP view has nothing to verify
		if route.RequiresAuth || route.Name == RouteOTP {
			return Decision{Redirect: RouteLogin}
		}
	case Authenticated:
		if route.Name == RouteLogin || route.Name == RouteOTP {
			return Decision{Redirect: RouteDashboard}
		}
	}
	return Decision{Allow: true}
}

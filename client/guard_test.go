package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedState State

func (f fixedState) State() State { return State(f) }

func TestGuard(t *testing.T) {
	login := Route{Name: RouteLogin}
	otpView := Route{Name: RouteOTP}
	dashboard := Route{Name: RouteDashboard, RequiresAuth: true}
	about := Route{Name: "about"}

	tests := []struct {
		name  string
		state State
		route Route
		want  Decision
	}{
		{"anonymous on protected route", Anonymous, dashboard, Decision{Redirect: RouteLogin}},
		{"anonymous on login", Anonymous, login, Decision{Allow: true}},
		{"anonymous on public route", Anonymous, about, Decision{Allow: true}},
		{"anonymous on otp", Anonymous, otpView, Decision{Redirect: RouteLogin}},
		{"pending on dashboard", PendingTwoFactor, dashboard, Decision{Redirect: RouteOTP}},
		{"pending on login", PendingTwoFactor, login, Decision{Redirect: RouteOTP}},
		{"pending on otp", PendingTwoFactor, otpView, Decision{Allow: true}},
		{"authenticated on login", Authenticated, login, Decision{Redirect: RouteDashboard}},
		{"authenticated on otp", Authenticated, otpView, Decision{Redirect: RouteDashboard}},
		{"authenticated on dashboard", Authenticated, dashboard, Decision{Allow: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guard(fixedState(tt.state), tt.route))
		})
	}
}

package controllers

import (
	"math"
	"testing"
)

func TestPIDSign(t *testing.T) {
	ctrl := NewPID(10.0, 0.1, 5.0, 0)
	if u := ctrl.Update(-1, 0); u >= 0 {
		t.Error("PID should output negative control for negative error")
	}
}

func TestPIDFirstUpdateIsProportional(t *testing.T) {
	ctrl := NewPID(2, 100, 100, 0)
	if u := ctrl.Update(0.5, 3); u != 1 {
		t.Errorf("expected 1, got %f", u)
	}
}

func TestPIDIntegrates(t *testing.T) {
	ctrl := NewPID(0, 1, 0, 0)
	ctrl.Update(1, 0)
	var u float64
	for i := 1; i <= 10; i++ {
		u = ctrl.Update(1, float64(i)*0.1)
	}
	if math.Abs(u-1) > 1e-9 {
		t.Errorf("expected integral 1, got %f", u)
	}
}

func TestPIDLimit(t *testing.T) {
	ctrl := NewPID(100, 10, 0, 5)
	ctrl.Update(1, 0)
	for i := 1; i <= 50; i++ {
		if u := ctrl.Update(1, float64(i)*0.1); u > 5 {
			t.Fatalf("output %f exceeds limit", u)
		}
	}
	// No windup: a sign change takes effect immediately.
	if u := ctrl.Update(-1, 5.1); u >= 0 {
		t.Errorf("integrator wound up, got %f", u)
	}
}

func TestPIDReset(t *testing.T) {
	ctrl := NewPID(1, 1, 1, 0)
	ctrl.Update(1, 0)
	ctrl.Update(1, 1)
	ctrl.Reset()
	if u := ctrl.Update(0.5, 7); u != 0.5 {
		t.Errorf("expected proportional output after reset, got %f", u)
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{math.Pi, -math.Pi},
	}
	for _, tt := range tests {
		if got := WrapAngle(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapAngle(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

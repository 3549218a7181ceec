package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signinTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_signin_total",
		Help: "Office sign-in attempts by outcome.",
	}, []string{"outcome"})

	lateSignins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_signin_late_total",
		Help: "Office sign-ins classified late.",
	})

	classAttendanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_class_attendance_total",
		Help: "Class attendance submissions by outcome.",
	}, []string{"outcome"})

	invalidCodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_invalid_code_total",
		Help: "Rejected PIN/barcode attempts.",
	})

	sessionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_session_requests_total",
		Help: "Daily and class session get-or-create requests; most return the existing row.",
	}, []string{"kind"})
)

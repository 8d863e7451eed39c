package postgres

import (
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/domain/referral"
)

func referralRedemptionFixture() referral.Redemption {
	return referral.Redemption{
		CodeID:        "code-1",
		RefereeID:     "student-2",
		CreditMinutes: 30,
	}
}

func workingHoursFixture() booking.WorkingHours {
	return booking.WorkingHours{
		InstructorID: "inst-1",
		Days: map[time.Weekday]booking.DayWindow{
			time.Monday:  {Start: "09:00", End: "17:00"},
			time.Tuesday: {Start: "09:00", End: "13:00"},
		},
	}
}

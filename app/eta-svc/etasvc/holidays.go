package etasvc

import (
	"time"

	"github.com/rickar/cal/v2"
)

//serviceHolidayCalendar holds the national holidays observed by the agency,
//used to populate the holiday flag on trip aggregate rows
type serviceHolidayCalendar struct {
	calendar *cal.BusinessCalendar
}

//makeServiceHolidayCalendar builds the calendar with the fixed-date Indonesian
//national holidays. Movable holidays follow the lunar calendars and are not
//derivable here.
//TODO:: load the movable holiday dates for the current year from configuration.
func makeServiceHolidayCalendar() *serviceHolidayCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(
		&cal.Holiday{Name: "Tahun Baru", Month: time.January, Day: 1, Func: cal.CalcDayOfMonth},
		&cal.Holiday{Name: "Hari Buruh", Month: time.May, Day: 1, Func: cal.CalcDayOfMonth},
		&cal.Holiday{Name: "Hari Lahir Pancasila", Month: time.June, Day: 1, Func: cal.CalcDayOfMonth},
		&cal.Holiday{Name: "Hari Kemerdekaan", Month: time.August, Day: 17, Func: cal.CalcDayOfMonth},
		&cal.Holiday{Name: "Hari Natal", Month: time.December, Day: 25, Func: cal.CalcDayOfMonth},
	)
	return &serviceHolidayCalendar{calendar: calendar}
}

//isHoliday returns true if at falls on an observed national holiday
func (s *serviceHolidayCalendar) isHoliday(at time.Time) bool {
	_, observed, _ := s.calendar.IsHoliday(at)
	return observed
}

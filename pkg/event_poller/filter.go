package event_poller

import "github.com/klokku/outlook-calendar/pkg/calendar"

// IsAvailable reports whether an event counts for the entity. Events marked
// with anything other than free are skipped unless availability is ignored.
func IsAvailable(event calendar.Event, ignoreAvailability bool) bool {
	if ignoreAvailability {
		return true
	}
	return event.Availability == calendar.AvailabilityUnknown || event.Availability == calendar.AvailabilityFree
}

func FilterAvailable(events []calendar.Event, ignoreAvailability bool) []calendar.Event {
	result := make([]calendar.Event, 0, len(events))
	for _, e := range events {
		if IsAvailable(e, ignoreAvailability) {
			result = append(result, e)
		}
	}
	return result
}

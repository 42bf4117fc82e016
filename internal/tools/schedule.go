package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/frontdesk/internal/backend"
	"github.com/MrWong99/frontdesk/internal/scheduling"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

// ScheduleAppointmentName is the model-facing name of the scheduling tool.
const ScheduleAppointmentName = "scheduleAppointment"

// TimeoutMessage is the result text when the webhook does not answer in time.
const TimeoutMessage = "System scheduling timed out (15s). Please try again."

// Scheduler submits a booking request. Implemented by [scheduling.Client].
type Scheduler interface {
	Schedule(ctx context.Context, req scheduling.Request) (scheduling.Response, error)
}

var _ Scheduler = (*scheduling.Client)(nil)

type scheduleArgs struct {
	Name    string `json:"name" jsonschema_description:"Customer's full name"`
	Phone   string `json:"phone" jsonschema_description:"Customer's phone number"`
	Email   string `json:"email" jsonschema_description:"Customer's email address"`
	Date    string `json:"date" jsonschema_description:"Requested date for appointment (Format: YYYY-MM-DD)"`
	Time    string `json:"time" jsonschema_description:"Requested time window"`
	Request string `json:"request" jsonschema_description:"Short description of the issue or service needed"`
}

func (a scheduleArgs) missing() []string {
	var out []string
	for _, f := range []struct{ name, v string }{
		{"name", a.Name}, {"phone", a.Phone}, {"email", a.Email},
		{"date", a.Date}, {"time", a.Time}, {"request", a.Request},
	} {
		if strings.TrimSpace(f.v) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// ScheduleAppointment returns the tool that forwards a booking request to s.
// Confirmed bookings are recorded in store.
//
// The result always has a "result" text for the model. On timeout it also
// carries "timeout": true; on any other scheduling failure the request is
// acknowledged as simulated, with "simulated": true and the failure in
// "note", so the conversation can continue.
func ScheduleAppointment(s Scheduler, store *backend.Store) Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        ScheduleAppointmentName,
			Description: "Send booking details to the external scheduling system to check availability and book.",
			Parameters:  schemaFor[scheduleArgs](),
		},
		Handler: func(ctx context.Context, raw map[string]any) (map[string]any, error) {
			args, err := decodeArgs[scheduleArgs](raw)
			if err != nil {
				return nil, fmt.Errorf("tools: %s: decode args: %w", ScheduleAppointmentName, err)
			}
			if m := args.missing(); len(m) > 0 {
				return nil, fmt.Errorf("tools: %s: missing %s", ScheduleAppointmentName, strings.Join(m, ", "))
			}

			req := scheduling.Request(args)
			notify(ctx, Note{Message: "Sending POST request...", Data: req})

			resp, err := s.Schedule(ctx, req)
			switch {
			case err == nil:
			case errors.Is(err, scheduling.ErrTimeout):
				result := map[string]any{"result": TimeoutMessage, "timeout": true}
				notify(ctx, Note{Message: "Webhook Response", Data: result})
				return result, nil
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				result := map[string]any{
					"result":    fmt.Sprintf("Appointment request received for %s at %s. (Simulated: scheduling system unreachable)", args.Date, args.Time),
					"simulated": true,
					"note":      err.Error(),
				}
				notify(ctx, Note{Message: "Webhook Response", Data: result})
				return result, nil
			}

			if resp.Confirmed() && store != nil {
				store.AddBooking(backend.Booking{
					CustomerName: args.Name,
					PhoneNumber:  args.Phone,
					Email:        args.Email,
					Request:      args.Request,
					Date:         args.Date,
					Time:         args.Time,
					Status:       resp.Status,
				})
			}
			result := map[string]any{"result": resp.Status}
			notify(ctx, Note{Message: "Webhook Response", Data: result})
			return result, nil
		},
	}
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"tableside/internal/domain"
	"tableside/internal/staff"
)

// employeeRole maps a stored staff role onto a token role.
func employeeRole(role string) string {
	switch role {
	case RoleKitchen, RoleDriver, RoleOwner:
		return role
	}
	return RoleEmployee
}

func registerAccounts(api huma.API, s staff.Service, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-customer",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a customer account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterCustomerRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		c, err := s.RegisterCustomer(ctx, input.Body.Name, input.Body.Email, input.Body.Phone, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return tokenResponse(auth, c.ID, c.Name, RoleCustomer)
	})

	huma.Register(api, huma.Operation{
		OperationID: "login-customer",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Customer sign-in by email or phone",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		c, err := s.AuthenticateCustomer(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return tokenResponse(auth, c.ID, c.Name, RoleCustomer)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-employee",
		Method:        http.MethodPost,
		Path:          "/employees/register",
		Summary:       "Apply for a staff account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterEmployeeRequest `json:"body"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		emp, err := s.RegisterEmployee(ctx, input.Body.Name, input.Body.Email, input.Body.Role, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login-employee",
		Method:      http.MethodPost,
		Path:        "/employees/login",
		Summary:     "Staff sign-in",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		emp, err := s.AuthenticateEmployee(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return tokenResponse(auth, emp.ID, emp.Name, employeeRole(emp.Role))
	})

	huma.Register(api, huma.Operation{
		OperationID: "login-owner",
		Method:      http.MethodPost,
		Path:        "/owners/login",
		Summary:     "Owner sign-in",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		emp, err := s.AuthenticateEmployee(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		if emp.Role != RoleOwner {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not an owner account", nil)
		}
		return tokenResponse(auth, emp.ID, emp.Name, RoleOwner)
	})
}

func tokenResponse(auth AuthConfig, id, name, role string) (*struct {
	Body TokenResponse `json:"body"`
}, error) {
	token, err := IssueToken(auth.JWTSecret, id, name, role, auth.ttl())
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body TokenResponse `json:"body"`
	}{Body: TokenResponse{Token: token, ID: id, Name: name, Role: role}}, nil
}

func registerStaff(api huma.API, s staff.Service) {
	staffRoles := []string{RoleEmployee, RoleKitchen, RoleDriver}

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/employees/me",
		Summary:     "Current staff profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		emp, err := s.Repo.GetEmployee(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employee-directory",
		Method:      http.MethodGet,
		Path:        "/employees/directory",
		Summary:     "Staff directory",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Employee `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, staffRoles...); authErr != nil {
			return nil, authErr
		}
		items, err := s.Repo.ListEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Employee `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-employee-status",
		Method:      http.MethodPatch,
		Path:        "/employees/{employee_id}/status",
		Summary:     "Approve, reject, or deactivate an employee",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		EmployeeID string                   `path:"employee_id"`
		Body       SetEmployeeStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx) // owner only
		if authErr != nil {
			return nil, authErr
		}
		emp, err := s.SetEmployeeStatus(ctx, input.EmployeeID, input.Body.Status, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-shift",
		Method:        http.MethodPost,
		Path:          "/shifts",
		Summary:       "Assign a weekly shift",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body AddShiftRequest `json:"body"`
	}) (*struct {
		Body domain.Shift `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		sh, err := s.AddShift(ctx, input.Body.EmployeeID, input.Body.Day, input.Body.Start, input.Body.End)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Shift `json:"body"`
		}{Body: sh}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-shifts",
		Method:      http.MethodGet,
		Path:        "/shifts",
		Summary:     "List shifts",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
	}) (*struct {
		Body []domain.Shift `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.EmployeeID
		if p.Role != RoleOwner {
			employeeID = p.ID
		}
		items, err := s.Repo.ListShifts(ctx, employeeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Shift `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-timesheet",
		Method:        http.MethodPost,
		Path:          "/timesheets",
		Summary:       "Submit a timesheet day",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body SubmitTimesheetRequest `json:"body"`
	}) (*struct {
		Body domain.TimesheetEntry `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := s.SubmitTimesheet(ctx, domain.TimesheetEntry{
			EmployeeID: p.ID,
			Date:       input.Body.Date,
			DayType:    input.Body.DayType,
			Start:      input.Body.Start,
			End:        input.Body.End,
			BreakMins:  input.Body.BreakMins,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TimesheetEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-timesheets",
		Method:      http.MethodGet,
		Path:        "/timesheets",
		Summary:     "List timesheet entries",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Status     string `query:"status" enum:",Pending,Accepted,Denied"`
	}) (*struct {
		Body []domain.TimesheetEntry `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.EmployeeID
		if p.Role != RoleOwner {
			employeeID = p.ID
		}
		items, err := s.Repo.ListTimesheets(ctx, employeeID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TimesheetEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-timesheet",
		Method:      http.MethodPost,
		Path:        "/timesheets/{timesheet_id}/decision",
		Summary:     "Accept or deny a timesheet day",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TimesheetID string          `path:"timesheet_id"`
		Body        DecisionRequest `json:"body"`
	}) (*struct {
		Body domain.TimesheetEntry `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := s.DecideTimesheet(ctx, input.TimesheetID, input.Body.Accept, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TimesheetEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "week-totals",
		Method:      http.MethodGet,
		Path:        "/timesheets/week",
		Summary:     "Weekly hour totals with the overtime split",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Date       string `query:"date" doc:"any day inside the target week, YYYY-MM-DD"`
	}) (*struct {
		Body domain.WeeklyTotals `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.EmployeeID
		if p.Role != RoleOwner {
			employeeID = p.ID
		}
		day := time.Now()
		if input.Date != "" {
			parsed, err := time.Parse("2006-01-02", input.Date)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD", nil)
			}
			day = parsed
		}
		totals, err := s.WeekTotalsFor(ctx, employeeID, day)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WeeklyTotals `json:"body"`
		}{Body: totals}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-leave",
		Method:        http.MethodPost,
		Path:          "/leave",
		Summary:       "Request leave",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RequestLeaveRequest `json:"body"`
	}) (*struct {
		Body domain.LeaveRequest `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		req, err := s.RequestLeave(ctx, p.ID, input.Body.From, input.Body.To, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LeaveRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leave",
		Method:      http.MethodGet,
		Path:        "/leave",
		Summary:     "List leave requests",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Status     string `query:"status" enum:",Pending,Accepted,Denied"`
	}) (*struct {
		Body []domain.LeaveRequest `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.EmployeeID
		if p.Role != RoleOwner {
			employeeID = p.ID
		}
		items, err := s.Repo.ListLeave(ctx, employeeID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LeaveRequest `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-balance",
		Method:      http.MethodGet,
		Path:        "/leave/balance",
		Summary:     "Monthly leave balance",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Month      string `query:"month" doc:"YYYY-MM, defaults to the current month"`
	}) (*struct {
		Body domain.LeaveBalance `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.EmployeeID
		if p.Role != RoleOwner {
			employeeID = p.ID
		}
		now := time.Now()
		year, month := now.Year(), now.Month()
		if input.Month != "" {
			parsed, err := time.Parse("2006-01", input.Month)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "month must be YYYY-MM", nil)
			}
			year, month = parsed.Year(), parsed.Month()
		}
		bal, err := s.LeaveBalance(ctx, employeeID, year, month)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LeaveBalance `json:"body"`
		}{Body: bal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-leave",
		Method:      http.MethodPost,
		Path:        "/leave/{leave_id}/decision",
		Summary:     "Accept or deny a leave request",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		LeaveID string          `path:"leave_id"`
		Body    DecisionRequest `json:"body"`
	}) (*struct {
		Body domain.LeaveRequest `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := s.DecideLeave(ctx, input.LeaveID, input.Body.Accept, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LeaveRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-announcement",
		Method:        http.MethodPost,
		Path:          "/announcements",
		Summary:       "Post an announcement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body PostAnnouncementRequest `json:"body"`
	}) (*struct {
		Body domain.Announcement `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := s.PostAnnouncement(ctx, input.Body.Title, input.Body.Message, input.Body.Audience, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Announcement `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-announcements",
		Method:      http.MethodGet,
		Path:        "/announcements",
		Summary:     "List announcements for the caller's audience",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Announcement `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		items, err := s.Repo.ListAnnouncements(ctx, p.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Announcement `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-announcement",
		Method:      http.MethodPost,
		Path:        "/announcements/{announcement_id}/read",
		Summary:     "Mark an announcement read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AnnouncementID string `path:"announcement_id"`
	}) (*struct {
		Body struct {
			OK bool `json:"ok"`
		} `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		if err := s.MarkAnnouncementRead(ctx, input.AnnouncementID, p.ID); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				OK bool `json:"ok"`
			} `json:"body"`
		}{}
		out.Body.OK = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send a direct message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body SendMessageRequest `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		m, err := s.SendMessage(ctx, p.ID, input.Body.To, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/messages/{peer_id}",
		Summary:     "Conversation with one peer",
	}, func(ctx context.Context, input *struct {
		PeerID string `path:"peer_id"`
	}) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, staffRoles...)
		if authErr != nil {
			return nil, authErr
		}
		items, err := s.Repo.ListMessages(ctx, p.ID, input.PeerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: items}, nil
	})
}

package cli

import (
	"fmt"

	"github.com/google/uuid"

	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	calendarapp "github.com/qzwhatnext/qzwhatnext/internal/calendar/application"
	identityapp "github.com/qzwhatnext/qzwhatnext/internal/identity/application"
	identitydomain "github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
	recurrencedomain "github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	schedulingapp "github.com/qzwhatnext/qzwhatnext/internal/scheduling/application"
	schedulingdomain "github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	taskcommands "github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// App holds the CLI application dependencies.
type App struct {
	// Services
	TaskHandler  *taskcommands.Handler
	Identity     *identityapp.Service
	Coordinator  *schedulingapp.Coordinator
	Synchronizer *calendarapp.Synchronizer

	// Repositories for the read side
	Users      identitydomain.UserRepository
	Tokens     identitydomain.AutomationTokenRepository
	Tasks      taskdomain.TaskRepository
	Series     recurrencedomain.SeriesRepository
	TimeBlocks recurrencedomain.TimeBlockRepository
	Blocks     schedulingdomain.BlockRepository
	AuditLog   auditdomain.Repository

	// HorizonDays is the schedule window commands display by default.
	HorizonDays int

	// CurrentUserID is the account commands act on.
	CurrentUserID uuid.UUID
}

// RequireUser returns the acting user id or an error when none is set.
func (a *App) RequireUser() (uuid.UUID, error) {
	if a.CurrentUserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("no user configured: pass --user or set QZWN_USER_ID")
	}
	return a.CurrentUserID, nil
}

// app is the global CLI application instance.
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

// RequireApp returns the initialized app or a uniform error for commands
// running before wiring completed.
func RequireApp() (*App, error) {
	if app == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return app, nil
}

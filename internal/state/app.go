// Package state holds the client-wide selection and expansion state. One
// App is created per process and shared by pointer with every controller.
package state

// App bundles the shared state objects.
type App struct {
	Selection Selection
	Expansion Expansion
}

func New() *App {
	return &App{}
}

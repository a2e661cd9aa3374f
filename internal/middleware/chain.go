// Package middleware provides authentication and authorization middleware for the application.
package middleware

import "github.com/gofiber/fiber/v2"

// Decision is the outcome of a single interceptor step.
type Decision int

const (
	// Continue hands the request to the next step in the chain.
	Continue Decision = iota
	// Stop short-circuits the chain; the step has already written the
	// response (or deliberately swallowed the request).
	Stop
)

// Step is one named interceptor in an explicit request pipeline. A step
// either lets the request continue, stops it after writing a response,
// or fails with an error for the app-level error handler to normalize.
type Step struct {
	Name string
	Run  func(c *fiber.Ctx) (Decision, error)
}

// Compose turns an ordered list of steps into a single Fiber handler.
// Steps run strictly in order; the first error or Stop ends the chain.
// There is no hidden dispatch: what you list is what runs.
func Compose(steps ...Step) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, step := range steps {
			decision, err := step.Run(c)
			if err != nil {
				return err
			}
			if decision == Stop {
				return nil
			}
		}
		return c.Next()
	}
}

package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowrun-io/flowrun/pkg/engine"
	"github.com/flowrun-io/flowrun/pkg/persistence"
	"github.com/flowrun-io/flowrun/pkg/state"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto RFC 7807
// responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidGraph):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_graph").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, engine.ErrRunNotCancellable),
		errors.Is(err, engine.ErrRunNotWaiting),
		errors.Is(err, engine.ErrRunNotPausable),
		errors.Is(err, engine.ErrRunNotRetryable),
		errors.Is(err, engine.ErrRunNotFinished),
		errors.Is(err, engine.ErrRetryLimitReached):
		return conflict(c, err.Error())

	case persistence.IsRunNotFound(err):
		return notFound(c, "run_not_found", "run not found")

	case persistence.IsNodeRunNotFound(err):
		return notFound(c, "node_run_not_found", "node run not found")

	case persistence.IsGraphVersionNotFound(err):
		return notFound(c, "graph_version_not_found", "graph version not found")

	case errors.Is(err, state.ErrRunStateNotFound):
		return notFound(c, "run_state_not_found", "run state not found")

	default:
		return internalError(c, err)
	}
}

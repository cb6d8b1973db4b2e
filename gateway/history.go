package gateway

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/llm"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

// DeleteResponse is the body returned after a thread is deleted.
type DeleteResponse struct {
	Success  string `json:"success"`
	ThreadID string `json:"thread_id"`
}

// handleListThreads returns every thread summary, most recently updated first.
func (s *Server) handleListThreads(c *fiber.Ctx) error {
	summaries, err := s.store.List(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list threads", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to fetch threads"})
	}

	// drivers already sort; re-sorting keeps the endpoint's order independent of them
	thread.SortByUpdated(summaries)
	if summaries == nil {
		summaries = []thread.Summary{}
	}
	return c.JSON(summaries)
}

// handleGetThread returns the messages of one thread.
func (s *Server) handleGetThread(c *fiber.Ctx) error {
	id := c.Params("id")
	t, err := s.store.Get(c.UserContext(), id)
	if err != nil {
		if thread.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "Thread not found: " + id})
		}
		s.logger.Error("failed to get thread", zap.String("thread_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to fetch thread"})
	}

	if t.Messages == nil {
		t.Messages = []thread.Message{}
	}
	return c.JSON(t.Messages)
}

func (s *Server) handleDeleteThread(c *fiber.Ctx) error {
	id := c.Params("id")
	n, err := s.store.Delete(c.UserContext(), id)
	if err != nil {
		s.logger.Error("failed to delete thread", zap.String("thread_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to delete thread"})
	}
	if n == 0 {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "Thread not found: " + id})
	}

	s.logger.Info("deleted thread", zap.String("thread_id", id))
	return c.JSON(DeleteResponse{Success: "Thread deleted successfully", ThreadID: id})
}

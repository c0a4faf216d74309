package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"

	"settlementsam/internal/scoring"
)

type QuizHandler struct{}

func NewQuizHandler() *QuizHandler { return &QuizHandler{} }

// Score
// @Summary      Score a completed quiz
// @Description  Returns the score, tier and settlement range. An at-fault claimant is disqualified before the remaining answers are checked.
// @Tags         Quiz
// @Accept       json
// @Produce      json
// @Param        body  body      scoring.Answers  true  "quiz answers"
// @Success      200   {object}  scoring.Result
// @Failure      400   {object}  map[string]interface{}
// @Router       /api/quiz/score [post]
func (h *QuizHandler) Score(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		bindError(c, err)
		return
	}
	var a scoring.Answers
	if err := json.Unmarshal(raw, &a); err != nil {
		bindError(c, err)
		return
	}
	// the widget stops asking once the claimant says they were at fault
	if a.AtFault {
		c.JSON(http.StatusOK, scoring.Evaluate(a))
		return
	}
	if err := binding.Validator.ValidateStruct(&a); err != nil {
		bindError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoring.Evaluate(a))
}

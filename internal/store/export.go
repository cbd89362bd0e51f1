package store

import (
	"fmt"

	"github.com/rsharma/biopaper/internal/model"
)

// ExportAllPapers builds export-ready records for every stored paper.
func (s *Store) ExportAllPapers() ([]model.PaperResult, error) {
	papers, err := s.ListPapers(0)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}

	var results []model.PaperResult
	for _, p := range papers {
		view, err := s.GetPaperView(p.ID)
		if err != nil {
			return nil, fmt.Errorf("get paper %d: %w", p.ID, err)
		}

		user, err := s.GetUserByID(p.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", p.CreatedBy, err)
		}
		var createdBy string
		if user != nil {
			createdBy = user.DisplayName
		}

		var questions []model.QuestionResult
		for i, q := range view.Questions {
			questions = append(questions, model.QuestionResult{
				Position:   i + 1,
				Text:       q.Text,
				Answer:     q.Answer,
				Chapter:    q.Chapter,
				Difficulty: q.Difficulty,
				Type:       q.Type,
				Marks:      q.Marks,
			})
		}

		results = append(results, model.PaperResult{
			PublicID:   p.PublicID,
			Title:      p.Title,
			Class:      p.Class,
			TotalMarks: p.TotalMarks,
			Mode:       p.Mode,
			Status:     p.Status,
			CreatedBy:  createdBy,
			CreatedAt:  p.CreatedAt,
			Questions:  questions,
		})
	}

	return results, nil
}

package domain

import "strconv"

const (
	QuestionCategorySchedule    = "schedule"
	QuestionCategoryCleanliness = "cleanliness"
	QuestionCategorySocial      = "social"
	QuestionCategoryEnvironment = "environment"
	QuestionCategoryWorkspace   = "workspace"
	QuestionCategoryFood        = "food"
	QuestionCategoryNoise       = "noise"
	QuestionCategoryEmotional   = "emotional"
)

// Question es inmutable: se define al arrancar el proceso y no cambia.
type Question struct {
	Ordinal  int    `json:"ordinal"` // 1-based
	Text     string `json:"text"`
	Category string `json:"category"` // solo metadata, no puntua
}

// ID devuelve el identificador estable que viaja al servicio de voz.
func (q Question) ID() string {
	return "q" + strconv.Itoa(q.Ordinal)
}

var defaultQuestions = []Question{
	{Ordinal: 1, Text: "When do you feel most active during the day?", Category: QuestionCategorySchedule},
	{Ordinal: 2, Text: "How do you feel about cleanliness in your living space?", Category: QuestionCategoryCleanliness},
	{Ordinal: 3, Text: "Do you prefer spending time with your roommate or personal space?", Category: QuestionCategorySocial},
	{Ordinal: 4, Text: "What kind of living environment do you enjoy (quiet, lively, mix)?", Category: QuestionCategoryEnvironment},
	{Ordinal: 5, Text: "Where do you prefer to work/study: home, cafe, etc.?", Category: QuestionCategoryWorkspace},
	{Ordinal: 6, Text: "Do you enjoy cooking or eating out?", Category: QuestionCategoryFood},
	{Ordinal: 7, Text: "How do you feel about noise levels?", Category: QuestionCategoryNoise},
	{Ordinal: 8, Text: "How do you handle emotions when upset?", Category: QuestionCategoryEmotional},
}

// DefaultQuestions devuelve una copia del cuestionario fijo de intake.
func DefaultQuestions() []Question {
	out := make([]Question, len(defaultQuestions))
	copy(out, defaultQuestions)
	return out
}

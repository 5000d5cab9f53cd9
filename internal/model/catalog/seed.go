package catalog

// Seed provides a small starter catalog for local development.
func Seed() Outline {
	return Outline{
		Books: []Book{
			{ID: 1, Title: "Everyday English"},
			{ID: 2, Title: "Business English"},
		},
		Units: []Unit{
			{ID: 1, BookID: 1, Title: "Greetings"},
			{ID: 2, BookID: 1, Title: "Food and Drink"},
			{ID: 3, BookID: 2, Title: "Meetings"},
		},
		Lessons: []Lesson{
			{ID: 1, UnitID: 1, Title: "Saying Hello", Type: LessonVocabulary},
			{ID: 2, UnitID: 1, Title: "Meeting a Neighbour", Type: LessonReading},
			{ID: 3, UnitID: 1, Title: "Small Talk", Type: LessonConversation},
			{ID: 4, UnitID: 2, Title: "At the Cafe", Type: LessonVocabulary},
			{ID: 5, UnitID: 2, Title: "Ordering Dinner", Type: LessonConversation},
			{ID: 6, UnitID: 3, Title: "Agenda Words", Type: LessonVocabulary},
			{ID: 7, UnitID: 3, Title: "Minutes of a Meeting", Type: LessonReading},
		},
	}
}

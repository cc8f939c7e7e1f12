package model

import "time"

// MaterialSourceType は学習素材の入力元を表す。
type MaterialSourceType string

const (
	MaterialSourcePDF  MaterialSourceType = "pdf"
	MaterialSourceURL  MaterialSourceType = "url"
	MaterialSourceText MaterialSourceType = "text"
)

// MaterialStatus は学習素材の処理状態を表す。
type MaterialStatus string

const (
	MaterialStatusProcessing MaterialStatus = "processing"
	MaterialStatusReady      MaterialStatus = "ready"
	MaterialStatusError      MaterialStatus = "error"
)

// Material はユーザーが取り込んだ学習素材を表す。
// 本文はMarkdownとして保存し、一覧表示用に先頭500文字のプレビューを持つ。
// URL取り込みの場合は許可タグのみ残した原文HTMLをContentHTMLに保持する。
type Material struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	SourceType      MaterialSourceType
	ObjectKey       string
	SourceURL       string
	ContentMarkdown string
	ContentHTML     string
	ContentPreview  string
	WordCount       int
	Status          MaterialStatus
	ErrorMessage    string
	FileSize        int64
	FileName        string
	MimeType        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MCQ は多肢選択問題を表す。生成後は変更されない。
type MCQ struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// Flashcard は暗記カードを表す。生成後は変更されない。
type Flashcard struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// StudySet は素材から生成された学習セットを表す。
// 生成済みコンテンツ（Summary, MCQs, Flashcards）はイミュータブルで、
// 変更されるのは学習統計（TimesStudied, LastStudiedAt）のみ。
type StudySet struct {
	ID            string
	UserID        string
	MaterialID    string
	Title         string
	Description   string
	Summary       string
	MCQs          []MCQ
	Flashcards    []Flashcard
	ModelUsed     string
	CreditsUsed   int
	TimesStudied  int
	LastStudiedAt *time.Time
	CreatedAt     time.Time
}

// StudySessionType は学習セッションの種別を表す。
type StudySessionType string

const (
	StudySessionQuiz       StudySessionType = "quiz"
	StudySessionFlashcards StudySessionType = "flashcards"
)

// QuizAnswer はクイズセッション中の1問の解答を表す。
type QuizAnswer struct {
	QuestionID       string `json:"question_id"`
	SelectedIndex    int    `json:"selected_index"`
	WasCorrect       bool   `json:"was_correct"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// FlashcardReview は暗記カードセッション中の1枚のレビュー結果を表す。
type FlashcardReview struct {
	FlashcardID string `json:"flashcard_id"`
	Difficulty  string `json:"difficulty"` // "easy" | "medium" | "hard"
}

// StudySession はユーザーの学習セッション1回分の結果を表す。
type StudySession struct {
	ID                 string
	UserID             string
	StudySetID         string
	SessionType        StudySessionType
	QuizAnswers        []QuizAnswer
	QuizScore          *int
	FlashcardsReviewed []FlashcardReview
	DurationSeconds    int
	CompletedAt        time.Time
}

// UserStats はユーザーの学習統計の集計値を表す。
// /overviewページの表示用にセッション完了時に更新される。
type UserStats struct {
	UserID                 string
	TotalMaterialsUploaded int
	TotalStudySetsCreated  int
	TotalStudySessions     int
	TotalQuestionsAnswered int
	TotalCorrectAnswers    int
	TotalStudyTimeSeconds  int
	CurrentStreak          int
	LongestStreak          int
	LastStudyDate          *time.Time
	UpdatedAt              time.Time
}

package counselor

import (
	"fmt"
	"strconv"
	"strings"

	"collegeplan/internal/external"
)

// Mode selects between drafting a new essay and revising an existing one.
type Mode string

const (
	ModeWrite Mode = "write"
	ModeEdit  Mode = "edit"
)

// Activity is one extracurricular entry from the student's profile.
type Activity struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	StartGrade   string  `json:"startGrade"`
	EndGrade     string  `json:"endGrade"`
	HoursPerWeek float64 `json:"hoursPerWeek"`
	WeeksPerYear float64 `json:"weeksPerYear"`
	Description  string  `json:"description"`
}

// TestScore is one standardized test result.
type TestScore struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score string `json:"score"`
	Date  string `json:"date"`
}

// EssayRequest describes the essay to write or edit.
type EssayRequest struct {
	Prompt          string      `json:"prompt" validate:"required"`
	School          string      `json:"school" validate:"required"`
	WordCount       int         `json:"wordCount" validate:"required,gt=0,lte=5000"`
	ExistingEssay   string      `json:"existingEssay"`
	IncludeUserInfo bool        `json:"includeUserInfo"`
	UserActivities  []Activity  `json:"userActivities"`
	UserTestScores  []TestScore `json:"userTestScores"`
}

// Mode reports whether the request edits an existing essay.
func (r EssayRequest) Mode() Mode {
	if strings.TrimSpace(r.ExistingEssay) != "" {
		return ModeEdit
	}
	return ModeWrite
}

const writeIntro = `You are an expert college admissions essay writer with years of experience helping students get into top universities.

Your task is to write a compelling essay for a %[1]s application based on the prompt: "%[2]s".
The essay should be approximately %[3]d words.

ESSAY WRITING GUIDELINES:
- Create a personal, authentic-sounding essay with a distinctive voice that sounds like a thoughtful student
- Develop a clear narrative structure with a compelling beginning, meaningful middle, and memorable conclusion
- Focus on depth rather than breadth - explore one or two ideas thoroughly rather than many superficially
- Show, don't tell - use specific examples, anecdotes, and details to illustrate points
- Demonstrate self-reflection and personal growth
- Avoid clichés and generic statements about the college or the student's future`

const editIntro = `You are an expert college admissions essay editor with years of experience helping students get into top universities.

Your task is to edit the provided essay for a %[1]s application based on the prompt: "%[2]s".
The final essay should be approximately %[3]d words.

EDITING GUIDELINES:
- Maintain the student's authentic voice and core ideas while improving structure, clarity, and impact
- Ensure the essay has a compelling narrative arc with a strong beginning, middle, and end
- Make the essay more personal, reflective, and memorable
- Remove clichés and generic statements; replace with specific, vivid details
- Ensure the essay answers the prompt thoroughly while showcasing the student's unique qualities`

const writeBackgroundRules = `INSTRUCTIONS FOR USING STUDENT INFORMATION:
- Craft a narrative that authentically incorporates the student's most relevant experiences
- Select 1-2 activities or achievements that best align with the essay prompt and develop them in depth
- Use specific details from their background to create vivid examples and anecdotes
- Connect their experiences to their interest in %[1]s and their future aspirations
- Write in first person from the student's perspective, maintaining a natural, authentic voice
- The essay should feel personal and specific to this student, not generic`

const editBackgroundRules = `INSTRUCTIONS FOR USING STUDENT INFORMATION:
- Strategically incorporate relevant activities and achievements that support the essay's theme
- Don't simply list accomplishments; use them to illustrate character traits, growth, and qualifications
- Connect the student's experiences to their interest in %[1]s and their future goals
- Use specific details from their activities to create vivid examples and anecdotes
- Ensure the essay remains in the student's voice and perspective throughout`

const qualityCheck = `FINAL QUALITY CHECK:
- Ensure the essay directly addresses the prompt
- Verify the essay showcases the student's unique qualities and perspective
- Check that the essay feels authentic and personal, not generic
- Confirm the essay has a clear structure and flows naturally
- Make sure the essay is approximately %d words`

// BuildMessages returns the system and user messages for req.
func BuildMessages(req EssayRequest) []external.ChatMessage {
	mode := req.Mode()

	var system strings.Builder
	if mode == ModeEdit {
		fmt.Fprintf(&system, editIntro, req.School, req.Prompt, req.WordCount)
	} else {
		fmt.Fprintf(&system, writeIntro, req.School, req.Prompt, req.WordCount)
	}

	if background := studentBackground(req); background != "" {
		system.WriteString("\n\nIMPORTANT - STUDENT BACKGROUND INFORMATION:")
		system.WriteString(background)
		system.WriteString("\n\n")
		if mode == ModeEdit {
			fmt.Fprintf(&system, editBackgroundRules, req.School)
		} else {
			fmt.Fprintf(&system, writeBackgroundRules, req.School)
		}
	}

	system.WriteString("\n\n")
	fmt.Fprintf(&system, qualityCheck, req.WordCount)

	var user string
	if mode == ModeEdit {
		user = fmt.Sprintf("Here is my current essay that needs editing for my %s application based on this prompt: %q\n\n%s",
			req.School, req.Prompt, req.ExistingEssay)
	} else {
		user = fmt.Sprintf("Please write a college admissions essay for my %s application based on this prompt: %q. The essay should be approximately %d words.",
			req.School, req.Prompt, req.WordCount)
	}

	return []external.ChatMessage{
		{Role: external.RoleSystem, Content: system.String()},
		{Role: external.RoleUser, Content: user},
	}
}

// studentBackground renders the activities and test scores, or "" when the
// student opted out or has none.
func studentBackground(req EssayRequest) string {
	if !req.IncludeUserInfo {
		return ""
	}

	var b strings.Builder
	if len(req.UserActivities) > 0 {
		b.WriteString("\n\nStudent Activities:\n")
		for i, a := range req.UserActivities {
			fmt.Fprintf(&b, "%d. %s", i+1, a.Name)
			if a.Title != "" {
				fmt.Fprintf(&b, " - %s", a.Title)
			}
			fmt.Fprintf(&b, " (Grades %s-%s)\n", a.StartGrade, a.EndGrade)
			fmt.Fprintf(&b, "   Hours per week: %s, Weeks per year: %s\n",
				formatNumber(a.HoursPerWeek), formatNumber(a.WeeksPerYear))
			if a.Description != "" {
				fmt.Fprintf(&b, "   Description: %s\n", a.Description)
			}
		}
	}
	if len(req.UserTestScores) > 0 {
		b.WriteString("\n\nStudent Test Scores:\n")
		for i, s := range req.UserTestScores {
			fmt.Fprintf(&b, "%d. %s: %s (%s)\n", i+1, s.Name, s.Score, s.Date)
		}
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

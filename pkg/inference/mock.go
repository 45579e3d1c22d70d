package inference

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// MockGreeting is returned for an empty input.
const MockGreeting = "Hello! I'm ready to assist you. What would you like to discuss today?"

// Category is the intent bucket the mock responder picks from.
type Category string

const (
	CategoryTechnical  Category = "technical"
	CategoryBehavioral Category = "behavioral"
	CategoryInterview  Category = "interview"
	CategoryGeneral    Category = "general"
)

// Picker chooses an index in [0, n) for input. It must be safe for
// concurrent use.
type Picker func(input string, n int) int

// HashPicker picks by FNV hash of the input so identical inputs always
// receive the same response.
func HashPicker(input string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(input))
	return int(h.Sum32() % uint32(n))
}

type cannedAnswer struct {
	match func(string) bool
	text  string
}

var cannedAnswers = []cannedAnswer{
	{
		match: func(s string) bool {
			return strings.Contains(s, "tell me about yourself") || strings.Contains(s, "introduce yourself")
		},
		text: "I'm a dedicated professional with extensive experience in software development and AI technologies. My passion lies in creating innovative solutions that solve real-world problems. I combine technical expertise with strong communication skills to deliver exceptional results. Throughout my career, I've successfully led multiple projects from conception to deployment, always focusing on user experience and business value.",
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "strength") || strings.Contains(s, "weakness")
		},
		text: "My greatest strength is my ability to quickly learn and adapt to new technologies while maintaining a strong foundation in core principles. As for areas of improvement, I'm continuously working on delegating more effectively to empower team members, though I've made significant progress through leadership training and mentorship.",
	},
	{
		match: func(s string) bool {
			return strings.Contains(s, "why") &&
				(strings.Contains(s, "company") || strings.Contains(s, "role") || strings.Contains(s, "position"))
		},
		text: "I'm excited about this opportunity because it perfectly aligns with my career goals and expertise. Your company's commitment to innovation and the challenging nature of this role would allow me to contribute meaningfully while continuing to grow professionally. I'm particularly impressed by your recent achievements in AI technology and would love to be part of that journey.",
	},
}

// categoryKeywords is checked in order; the first category with a
// matching substring wins.
var categoryKeywords = []struct {
	category Category
	words    []string
}{
	{CategoryTechnical, []string{"code", "algorithm", "technical", "programming", "system", "design"}},
	{CategoryBehavioral, []string{"team", "conflict", "manage", "leader", "collaborate"}},
	{CategoryInterview, []string{"interview", "job", "career", "experience", "project"}},
}

var categoryResponses = map[Category][]string{
	CategoryInterview: {
		"That's an excellent question! Let me share my experience with this. In my previous role, I encountered a similar challenge where we needed to balance performance with maintainability. The approach I took was to first understand the core requirements, then implement a solution that could scale. Would you like me to elaborate on the specific techniques I used?",
		"I appreciate this question as it touches on a fundamental aspect of the role. Based on my experience, I believe the key is to approach this systematically. First, I would analyze the current situation, then identify potential improvements, and finally implement solutions with measurable outcomes. Let me give you a specific example from my recent project.",
		"Great question! This is actually something I'm passionate about. In my experience, the most effective approach combines both technical excellence and strong communication. Let me walk you through a situation where I successfully applied this principle.",
		"That's a very insightful question. I've handled similar scenarios multiple times in my career. The strategy that has worked best for me involves three key steps: assessment, planning, and iterative implementation. Would you like me to share a specific case study?",
		"Excellent point! This relates directly to my core strengths. I believe in taking a data-driven approach to solve such challenges. Let me explain how I've successfully implemented this methodology in past projects.",
	},
	CategoryTechnical: {
		"From a technical perspective, this is a fascinating problem. The optimal solution would involve implementing a microservices architecture with proper load balancing and caching strategies. I've worked with similar systems where we achieved 99.9% uptime. Would you like me to dive deeper into the technical implementation?",
		"That's a great technical question! The approach I would recommend involves using design patterns like Factory and Observer to maintain clean, scalable code. In my experience with large-scale applications, this has proven to reduce maintenance costs by up to 40%. Let me explain the architecture in more detail.",
		"Excellent technical challenge! I would approach this by first analyzing the time and space complexity requirements. Then, I'd implement an optimized algorithm using dynamic programming or a divide-and-conquer approach, depending on the specific constraints. I recently solved a similar problem that improved performance by 300%.",
		"From an engineering standpoint, this requires careful consideration of both performance and reliability. I would implement a solution using containerization with Kubernetes for orchestration, combined with a robust CI/CD pipeline. This approach has helped me achieve zero-downtime deployments in production environments.",
		"That's a sophisticated technical question. The solution involves implementing proper abstraction layers, using dependency injection for testability, and ensuring horizontal scalability. I've successfully implemented similar architectures that handled millions of requests per day.",
	},
	CategoryBehavioral: {
		"That's a great behavioral question. In that situation, I focused on clear communication and empathy. I scheduled one-on-one meetings with each team member to understand their perspectives, then facilitated a collaborative solution that addressed everyone's concerns. The result was a 25% improvement in team productivity.",
		"I appreciate this question as it highlights the importance of soft skills. When faced with such challenges, I believe in leading by example and maintaining transparency. Let me share a specific instance where this approach helped me turn around a struggling project.",
		"Excellent question about teamwork! My approach is to first listen actively to understand all viewpoints, then find common ground to build consensus. I recently led a cross-functional team where this method helped us deliver the project two weeks ahead of schedule.",
		"That's a valuable question about leadership. In my experience, the key is to balance assertiveness with empathy. I once managed a situation where conflicting priorities threatened our deadline, and through careful negotiation and compromise, we exceeded our goals.",
		"Great question about problem-solving! I approach such situations by remaining calm, gathering all relevant information, and involving the right stakeholders. This methodology has helped me resolve critical issues that could have impacted thousands of users.",
	},
	CategoryGeneral: {
		"That's a thoughtful question. Let me provide you with a comprehensive answer based on my experience. The key factors to consider include stakeholder requirements, available resources, and long-term sustainability. I've successfully applied this framework in multiple scenarios.",
		"I understand your interest in this topic. From my perspective, the most important aspect is maintaining a balance between innovation and stability. Let me share how I've achieved this balance in my previous roles.",
		"Excellent question! This touches on several important areas. My approach involves careful analysis, strategic planning, and consistent execution. I've found this methodology to be highly effective across different industries and project types.",
		"That's a very relevant question in today's context. Based on my experience, success in this area requires both technical expertise and business acumen. Let me explain how I've developed and applied both skill sets.",
		"Great point! This is something I've given considerable thought to. My philosophy is to always consider the bigger picture while paying attention to details. This balanced approach has helped me deliver consistent results throughout my career.",
	},
}

// Classify returns the mock category for input.
func Classify(input string) Category {
	lower := strings.ToLower(input)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.category
			}
		}
	}
	return CategoryGeneral
}

// Mock is the local responder. It never fails and performs no I/O.
type Mock struct {
	// Pick chooses among category responses. Defaults to HashPicker.
	Pick Picker

	mu    sync.Mutex
	calls int
}

var _ Completer = (*Mock)(nil)

// NewMock creates a mock responder with deterministic picking.
func NewMock() *Mock {
	return &Mock{Pick: HashPicker}
}

// Complete answers the latest message (the last non-system message, or
// the last message when all are system instructions).
func (m *Mock) Complete(_ context.Context, messages []Message, _ Options) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	input := LastUserContent(messages)
	if input == "" {
		input = LastContent(messages)
	}
	return m.Respond(input), nil
}

// Respond returns the canned response for a single input.
func (m *Mock) Respond(input string) string {
	if strings.TrimSpace(input) == "" {
		return MockGreeting
	}

	lower := strings.ToLower(input)
	for _, a := range cannedAnswers {
		if a.match(lower) {
			return a.text
		}
	}

	responses := categoryResponses[Classify(input)]
	pick := m.Pick
	if pick == nil {
		pick = HashPicker
	}
	i := pick(input, len(responses))
	if i < 0 || i >= len(responses) {
		i = 0
	}
	return responses[i]
}

// CallCount returns the number of Complete calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Responses returns the canned responses for a category.
func Responses(c Category) []string {
	return append([]string(nil), categoryResponses[c]...)
}

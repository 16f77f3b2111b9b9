// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"
)

// =============================================================================
// PROMPT TEMPLATES
// =============================================================================

// Template is a canned prompt with [bracketed] fields for the user to fill.
type Template struct {
	Name   string
	Prompt string
}

// Slug is the single-word form used on the command line.
func (t Template) Slug() string {
	return slugify(t.Name)
}

// Line returns the prompt flattened to one line for line editors.
// Blank lines are dropped and the rest are joined with spaces.
func (t Template) Line() string {
	var parts []string
	for _, l := range strings.Split(t.Prompt, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

// TemplateCategory groups related templates.
type TemplateCategory struct {
	Name      string
	Templates []Template
}

// Slug is the single-word form used on the command line.
func (c TemplateCategory) Slug() string {
	return slugify(c.Name)
}

// Find returns the template whose name or slug matches, ignoring case.
func (c TemplateCategory) Find(name string) (Template, bool) {
	for _, t := range c.Templates {
		if matchesName(name, t.Name) {
			return t, true
		}
	}
	return Template{}, false
}

// FindTemplateCategory returns the category whose name or slug matches.
func FindTemplateCategory(name string) (TemplateCategory, bool) {
	for _, c := range TemplateCategories {
		if matchesName(name, c.Name) {
			return c, true
		}
	}
	return TemplateCategory{}, false
}

// TemplateCategorySlugs lists category slugs in display order.
func TemplateCategorySlugs() []string {
	out := make([]string, len(TemplateCategories))
	for i, c := range TemplateCategories {
		out[i] = c.Slug()
	}
	return out
}

// templateSlugs lists the template slugs of category, or nil.
func templateSlugs(category string) []string {
	c, ok := FindTemplateCategory(category)
	if !ok {
		return nil
	}
	out := make([]string, len(c.Templates))
	for i, t := range c.Templates {
		out[i] = t.Slug()
	}
	return out
}

func matchesName(input, name string) bool {
	input = strings.TrimSpace(input)
	return strings.EqualFold(input, name) || strings.EqualFold(slugify(input), slugify(name))
}

// slugify lowercases s and joins its words with hyphens; "&" is dropped.
func slugify(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "&", " "))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "-")
}

// =============================================================================
// HANDLER
// =============================================================================

// HandleTemplate lists templates or loads one into the input line.
func HandleTemplate(c *Context, args []string) (Result, error) {
	if len(args) == 0 {
		var sb strings.Builder
		sb.WriteString("Template categories:\n")
		for _, cat := range TemplateCategories {
			fmt.Fprintf(&sb, "  %-22s %d templates\n", cat.Slug(), len(cat.Templates))
		}
		sb.WriteString("\nUse /template <category> to list its templates.")
		return Result{Output: sb.String()}, nil
	}

	cat, ok := FindTemplateCategory(args[0])
	if !ok {
		return Result{}, fmt.Errorf("unknown template category %q (options: %s)",
			args[0], strings.Join(TemplateCategorySlugs(), ", "))
	}

	if len(args) == 1 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s templates:\n", cat.Name)
		for _, t := range cat.Templates {
			fmt.Fprintf(&sb, "  %-26s %s\n", t.Slug(), t.Name)
		}
		fmt.Fprintf(&sb, "\nUse /template %s <name> to load one.", cat.Slug())
		return Result{Output: sb.String()}, nil
	}

	name := strings.Join(args[1:], " ")
	t, ok := cat.Find(name)
	if !ok {
		return Result{}, fmt.Errorf("unknown template %q in %s", name, cat.Name)
	}

	line := t.Line()
	c.Chat.SetInput(line)
	return Result{
		Output: fmt.Sprintf("Loaded %q. Replace the [bracketed] fields, then send.", t.Name),
		Input:  line,
	}, nil
}

// =============================================================================
// TEMPLATE TABLE
// =============================================================================

// TemplateCategories is the built-in template library in display order.
var TemplateCategories = []TemplateCategory{
	{
		Name: "Code Generation",
		Templates: []Template{
			{
				Name: "Debug Code",
				Prompt: "I have a bug in my code. Here's the code and the error I'm getting:\n\n" +
					"Code:\n```\n[paste your code here]\n```\n\n" +
					"Error:\n[paste error message here]\n\n" +
					"Can you help me identify and fix the issue?",
			},
			{
				Name: "Code Review",
				Prompt: "Please review this code for best practices, performance, and potential improvements:\n\n" +
					"```\n[paste your code here]\n```\n\n" +
					"Focus on: security, readability, performance, and maintainability.",
			},
			{
				Name: "API Integration",
				Prompt: "I need to integrate with [API name] API. Can you help me write code to:\n\n" +
					"1. Make API calls\n2. Handle authentication\n3. Parse responses\n4. Handle errors\n\n" +
					"Language: [specify language]\nFramework: [specify framework if any]",
			},
			{
				Name: "Algorithm Implementation",
				Prompt: "I need to implement [algorithm name] in [programming language]. Please provide:\n\n" +
					"1. Clean, well-commented code\n2. Time and space complexity analysis\n3. Example usage\n4. Test cases",
			},
		},
	},
	{
		Name: "Content Writing",
		Templates: []Template{
			{
				Name: "Blog Post",
				Prompt: "Write a comprehensive blog post about [topic]. Include:\n\n" +
					"1. Engaging title and introduction\n2. Well-structured main content with subheadings\n" +
					"3. Practical examples or case studies\n4. Conclusion with key takeaways\n\n" +
					"Target audience: [describe audience]\nTone: [professional/casual/technical]\nLength: [word count]",
			},
			{
				Name: "Product Description",
				Prompt: "Create a compelling product description for [product name]. Include:\n\n" +
					"1. Key features and benefits\n2. Target audience appeal\n" +
					"3. Technical specifications (if applicable)\n4. Call-to-action\n\n" +
					"Product details:\n[provide product information]",
			},
			{
				Name: "Email Template",
				Prompt: "Write a professional email for [purpose]. Include:\n\n" +
					"1. Clear subject line\n2. Appropriate greeting\n3. Concise main message\n4. Professional closing\n\n" +
					"Context: [provide context]\nRecipient: [describe recipient]\nTone: [formal/semi-formal/friendly]",
			},
			{
				Name: "Social Media Post",
				Prompt: "Create engaging social media content for [platform] about [topic]. Include:\n\n" +
					"1. Attention-grabbing hook\n2. Valuable content or insight\n3. Relevant hashtags\n4. Call-to-action\n\n" +
					"Brand voice: [describe brand personality]\nTarget audience: [describe audience]",
			},
		},
	},
	{
		Name: "Analysis & Research",
		Templates: []Template{
			{
				Name: "Market Research",
				Prompt: "Conduct a market analysis for [industry/product]. Please analyze:\n\n" +
					"1. Market size and growth trends\n2. Key competitors and their positioning\n" +
					"3. Target audience demographics\n4. Opportunities and challenges\n5. Recommendations\n\n" +
					"Focus area: [specific focus]\nGeographic scope: [region/global]",
			},
			{
				Name: "Data Analysis",
				Prompt: "Analyze this data and provide insights:\n\n[paste data or describe dataset]\n\n" +
					"Please provide:\n1. Key patterns and trends\n2. Statistical summary\n3. Actionable insights\n" +
					"4. Recommendations\n5. Visualizations suggestions",
			},
			{
				Name: "Competitive Analysis",
				Prompt: "Compare [Company A] vs [Company B] across these dimensions:\n\n" +
					"1. Product features and pricing\n2. Market positioning\n3. Strengths and weaknesses\n" +
					"4. Customer reviews and satisfaction\n5. Strategic recommendations\n\n" +
					"Industry: [specify industry]",
			},
			{
				Name: "SWOT Analysis",
				Prompt: "Perform a SWOT analysis for [company/product/project]:\n\n" +
					"Background: [provide context]\n\nPlease analyze:\n" +
					"1. Strengths (internal positive factors)\n2. Weaknesses (internal negative factors)\n" +
					"3. Opportunities (external positive factors)\n4. Threats (external negative factors)\n\n" +
					"Include strategic recommendations based on the analysis.",
			},
		},
	},
	{
		Name: "Creative Projects",
		Templates: []Template{
			{
				Name: "Story Writing",
				Prompt: "Write a [genre] story with the following elements:\n\n" +
					"Setting: [time and place]\nMain character: [character description]\n" +
					"Conflict: [central problem or challenge]\nTheme: [underlying message or theme]\n\n" +
					"Length: [short story/chapter/flash fiction]\nTone: [dramatic/humorous/mysterious/etc.]\n\n" +
					"Please include vivid descriptions and engaging dialogue.",
			},
			{
				Name: "Creative Brainstorming",
				Prompt: "I need creative ideas for [project/campaign/product]. Help me brainstorm:\n\n" +
					"1. 10 unique concepts or approaches\n2. Target audience considerations\n" +
					"3. Implementation possibilities\n4. Potential challenges and solutions\n\n" +
					"Project context: [provide background]\nConstraints: [budget/time/resources]\n" +
					"Goals: [what you want to achieve]",
			},
			{
				Name: "Character Development",
				Prompt: "Help me develop a character for [story/game/project]:\n\n" +
					"Basic concept: [initial character idea]\n\nPlease create:\n" +
					"1. Detailed background and history\n2. Personality traits and motivations\n" +
					"3. Physical description\n4. Relationships and conflicts\n5. Character arc potential\n\n" +
					"Genre: [specify genre]\nRole: [protagonist/antagonist/supporting]",
			},
			{
				Name: "Creative Writing Prompt",
				Prompt: "Give me a creative writing prompt that includes:\n\n" +
					"1. An interesting setting\n2. A compelling character\n3. A conflict or challenge\n" +
					"4. An unexpected element\n\n" +
					"Genre preference: [specify or say \"any\"]\nLength: [short story/novel/flash fiction]\n" +
					"Themes: [optional themes to explore]",
			},
		},
	},
	{
		Name: "Business & Strategy",
		Templates: []Template{
			{
				Name: "Business Plan",
				Prompt: "Help me create a business plan for [business idea]. Include:\n\n" +
					"1. Executive Summary\n2. Market Analysis\n3. Product/Service Description\n" +
					"4. Marketing Strategy\n5. Financial Projections\n6. Risk Assessment\n\n" +
					"Business type: [startup/expansion/new product]\nIndustry: [specify industry]\n" +
					"Target market: [describe target customers]",
			},
			{
				Name: "Marketing Strategy",
				Prompt: "Develop a marketing strategy for [product/service/company]:\n\n" +
					"1. Target audience analysis\n2. Unique value proposition\n3. Marketing channels and tactics\n" +
					"4. Budget allocation recommendations\n5. Success metrics and KPIs\n6. Timeline and milestones\n\n" +
					"Budget range: [specify budget]\nGoals: [awareness/leads/sales/etc.]",
			},
			{
				Name: "Project Proposal",
				Prompt: "Write a project proposal for [project name]:\n\n" +
					"1. Project overview and objectives\n2. Scope and deliverables\n3. Timeline and milestones\n" +
					"4. Resource requirements\n5. Budget estimate\n6. Risk assessment\n7. Expected outcomes\n\n" +
					"Project type: [specify type]\nStakeholders: [who's involved]",
			},
			{
				Name: "Meeting Agenda",
				Prompt: "Create a meeting agenda for [meeting purpose]:\n\n" +
					"Meeting details:\n- Date: [date]\n- Duration: [time]\n- Attendees: [list attendees]\n" +
					"- Objective: [main goal]\n\nPlease include:\n" +
					"1. Welcome and introductions\n2. Key discussion topics\n3. Decision points\n" +
					"4. Action items\n5. Next steps",
			},
		},
	},
}

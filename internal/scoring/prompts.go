package scoring

import (
	"encoding/json"
	"fmt"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// PromptKind 请求类型,离线评分器据此分派
type PromptKind int

const (
	KindScore PromptKind = iota
	KindVerify
	KindTriggers
)

// DefaultSystemPrompt 默认系统提示词
const DefaultSystemPrompt = "You are an architect. You want to find the product information from a supplier's website. " +
	"You are clicking the button to go to the product description page."

const (
	linksMarker    = "Links to analyze:"
	elementsMarker = "Here is the list of elements:"
	pageMarker     = "Page Content:"
)

// promptLink 发送给模型的链接描述
type promptLink struct {
	ID           int    `json:"id"`
	RelativePath string `json:"relative_path"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

const scoreOutputStructure = `Please format your response as JSON with the following structure:
[
    {"id": 0, "score": 3.4},
    {"id": 1, "score": 7.8},
    {"id": 2, "score": 9.5, "targetLabel": "Emerald Urethane Trim Enamel"},
    ...
]

IMPORTANT:
- Include the 'id' field for each item to match it with the corresponding link
- Provide exactly one score object for each link
- Include 'targetLabel' only when score > 9.0`

const verifyOutputStructure = `Please format your response as JSON with the following structure:
{
    "isProductPage": true/false,
    "productName": "Product Name Here" (only if isProductPage is true)
}`

const triggerOutputStructure = `Please format your response as JSON with the following structure:
[
    {"id": 3, "triggerType": "Pagination"},
    {"id": 7, "triggerType": "Load More"},
    {"id": -1}
]

IMPORTANT:
- If no dynamic loading is detected, return [{"id": -1}]
- If dynamic loading is found, provide the element ID and trigger type
- Valid trigger types are: Pagination, Load More, Tabs, Accordions, Expanders`

func buildScorePrompt(system string, candidates []models.Candidate, pageContext string) (Prompt, error) {
	links := make([]promptLink, 0, len(candidates))
	for _, c := range candidates {
		links = append(links, promptLink{
			ID:           c.ID,
			RelativePath: c.RelativePath,
			Title:        c.Label,
			Description:  c.Description,
		})
	}
	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("序列化候选链接失败: %w", err)
	}

	instruction := "You come to a page with a list of links. Here is the ID, relative path, title and description of each link.\n" +
		"Score them from 0 - 10 according to how likely the link will lead you to the product description page.\n" +
		"A score less than 1 is for links you will never click.\n" +
		"A score higher than 9 is for links you think is very likely to be the product description page of a specific product. " +
		"For these kind of link, you will also tell the product name.\n"
	if pageContext != "" {
		instruction += "\nThe current page:\n" + pageContext + "\n"
	}
	instruction += "\n" + linksMarker + "\n" + string(data)

	return Prompt{
		Kind:            KindScore,
		System:          system,
		Instruction:     instruction,
		OutputStructure: scoreOutputStructure,
		MaxTokens:       4000,
	}, nil
}

func buildVerifyPrompt(system, pageURL, pageContext string) Prompt {
	instruction := "You are now on a webpage. Here is the content:\n\n" +
		"URL: " + pageURL + "\n\n" +
		pageMarker + "\n" + pageContext + "\n\n" +
		"Is this the product description page itself? If yes, what is the product name?"
	return Prompt{
		Kind:            KindVerify,
		System:          system,
		Instruction:     instruction,
		OutputStructure: verifyOutputStructure,
		MaxTokens:       1000,
	}
}

func buildTriggerPrompt(system string, elements []models.DynamicElement) (Prompt, error) {
	data, err := json.Marshal(elements)
	if err != nil {
		return Prompt{}, fmt.Errorf("序列化页面元素失败: %w", err)
	}
	instruction := "On this page, you found multiple links to product description pages. " +
		"According to the UI elements on this page, do you think the page uses dynamic loading? " +
		"If yes, output the element's id and tell its trigger type (select one from: Pagination, Load More, Tabs, Accordions, Expanders), " +
		`if no, you answer with {"id": -1}.` + "\n\n" +
		elementsMarker + "\n" + string(data)
	return Prompt{
		Kind:            KindTriggers,
		System:          system,
		Instruction:     instruction,
		OutputStructure: triggerOutputStructure,
		MaxTokens:       1000,
	}, nil
}

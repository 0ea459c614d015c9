package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ArticlePoster/internal/config"
	"ArticlePoster/internal/ports"
)

// Prompts mirror the production SEO writing instructions; the generated
// content is Japanese.
const (
	keywordSystemPrompt = "あなたはSEOに特化したマーケターです。"
	titleSystemPrompt   = "あなたはSEOに強いプロのライターです。"
	bodySystemPrompt    = "あなたはSEOに強いプロの日本語ライターです。"

	keywordPromptFmt = `あなたはSEOマーケティングの専門家です。
以下のジャンルに対して、検索上位を狙える【3語以上のロングテールキーワード】を10個、日本語で出力してください。

ジャンル: %s

条件:
- ３語以上のロングテールキーワード
- 必ず10個
`

	titlePromptFmt = `あなたはSEOとコンテンツマーケティングの専門家です。

入力されたキーワードを使って
WEBサイトのQ＆A記事コンテンツに使用する「記事タイトル」を10個考えてください。

記事タイトルには必ず入力されたキーワードを全て使ってください。
キーワードの順番は入れ替えないでください。
最後は「？」で締めてください。

キーワード: %s
出力形式: 箇条書き
`

	bodyPromptFmt = `あなたはSEOとコンテンツマーケティングの専門家です。

入力された「Q＆A記事のタイトル」に対しての
回答記事を以下の###条件###に沿って書いてください。

タイトル: 「%s」

###条件###

・文章の構成としては、問題提起、共感、問題解決策を入れて書いてください。
・Q＆A記事のタイトルについて悩んでいる人が知りたい事を書いてください。
・見出し（hタグ）を付けてわかりやすく書いてください
・記事の文字数は必ず2000文字程度でまとめてください
・1行の長さは30文字前後にして接続詞などで改行してください。
・「文章の島」は1行から3行以内にして、文章の島同士は2行空けてください
・親友に向けて話すように書いてください（ただし敬語を使ってください）
・読み手のことは「皆さん」ではなく必ず「あなた」と書いてください。
`
)

const (
	keywordCount     = 10
	keywordMaxTokens = 300
	titleMaxTokens   = 500
	bodyMaxTokens    = 2000
	temperature      = 0.7
)

// listMarkers are stripped from both ends of model output lines.
const listMarkers = "-・●0123456789. \t"

// OpenAIClient implements ports.ChatClient backed by OpenAI-compatible
// chat-completions APIs.
type OpenAIClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ChatClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Keywords asks for long-tail SEO keywords for the genre.
func (c *OpenAIClient) Keywords(ctx context.Context, genre string) ([]string, error) {
	resp, err := c.complete(ctx, keywordSystemPrompt, fmt.Sprintf(keywordPromptFmt, genre), keywordMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("keywords for %q: %w", genre, err)
	}

	keywords := listLines(resp.content())
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords for %q: model returned no usable lines", genre)
	}
	if len(keywords) > keywordCount {
		keywords = keywords[:keywordCount]
	}
	return keywords, nil
}

// Title generates one Q&A article title containing the keyword. The first
// usable line wins; an empty response falls back to a deterministic title.
func (c *OpenAIClient) Title(ctx context.Context, keyword string) (string, error) {
	resp, err := c.complete(ctx, titleSystemPrompt, fmt.Sprintf(titlePromptFmt, keyword), titleMaxTokens)
	if err != nil {
		return "", fmt.Errorf("title for %q: %w", keyword, err)
	}

	lines := listLines(resp.content())
	if len(lines) == 0 {
		return fmt.Sprintf("%s に関するQ&A記事", keyword), nil
	}
	return lines[0], nil
}

// Body writes the article body for the title and reports token usage.
func (c *OpenAIClient) Body(ctx context.Context, title string) (ports.BodyResult, error) {
	resp, err := c.complete(ctx, bodySystemPrompt, fmt.Sprintf(bodyPromptFmt, title), bodyMaxTokens)
	if err != nil {
		return ports.BodyResult{}, fmt.Errorf("body for %q: %w", title, err)
	}

	body := strings.TrimSpace(resp.content())
	if body == "" {
		return ports.BodyResult{}, fmt.Errorf("body for %q: model returned empty content", title)
	}
	return ports.BodyResult{
		Body:         body,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r chatResponse) content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string, maxTokens int) (chatResponse, error) {
	var parsed chatResponse
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return parsed, fmt.Errorf("openai client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	})
	if err != nil {
		return parsed, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return parsed, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return parsed, fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return parsed, fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return parsed, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil
}

// listLines splits model output into cleaned list items, dropping bullet
// markers and blank lines.
func listLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.Trim(strings.TrimSpace(line), listMarkers)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

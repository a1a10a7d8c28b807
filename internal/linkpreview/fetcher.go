// Package linkpreview はイベントに添付された外部リンクの
// プレビュータイトル取得機能を提供する。
package linkpreview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher は外部URLからページタイトルを取得する。
// 取得は旅程保存処理のベストエフォートであり、失敗しても保存自体は成功させる
// 前提で呼び出される。
type Fetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// FetchTitle はURLのページタイトルを取得する。
// 1. SSRF検証を実行
// 2. SSRF防止付きクライアントでHTTPリクエストを送信
// 3. HTMLレスポンスからog:titleまたはtitleタグを抽出
// HTMLでないレスポンスやタイトル未検出の場合はエラーを返す。
func (f *Fetcher) FetchTitle(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
			return "", fmt.Errorf("unsafe link URL: %w", err)
		}
	}

	client := f.getHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid link URL: %w", err)
	}
	req.Header.Set("User-Agent", "Tripman/1.0 Link Preview")
	req.Header.Set("Accept", "text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return "", fmt.Errorf("not an HTML page: %s", mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	title := extractTitle(body)
	if title == "" {
		return "", fmt.Errorf("no title found")
	}

	return title, nil
}

// extractTitle はHTMLからタイトルを抽出する。
// og:titleメタタグを優先し、なければtitleタグの内容を返す。
// headタグを抜けた時点で解析を打ち切る。
func extractTitle(htmlBody []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))

	var title string
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(title)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return strings.TrimSpace(title)
			}

			if tagName == "title" {
				inTitle = true
				continue
			}

			if tagName != "meta" || !hasAttr {
				continue
			}

			// og:titleメタタグの解析
			var property, content string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "property", "name":
					property = strings.ToLower(string(val))
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}

			// og:titleは通常のtitleタグより優先する
			if property == "og:title" && content != "" {
				return strings.TrimSpace(content)
			}

		case html.TextToken:
			if inTitle && title == "" {
				title = string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "title" {
				inTitle = false
			}
			if tagName == "head" {
				return strings.TrimSpace(title)
			}
		}
	}
}

// getHTTPClient はHTTPクライアントを取得する。
// SSRFGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (f *Fetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout)
	}
	return &http.Client{Timeout: f.timeout}
}

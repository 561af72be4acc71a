package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Telegram 通知器：把决策执行/风控拒绝/停机等关键事件推送到指定群或频道。
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegram(botToken, chatID string, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Telegram{BotToken: botToken, ChatID: chatID, Client: &http.Client{Timeout: timeout}}
}

// SendText 发送文本消息（带最多 3 次重试）。
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("Telegram 配置不完整")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	return t.withRetry(func() error {
		req, err := http.NewRequest("POST", url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return t.do(req)
	})
}

// SendPhoto 发送 PNG 图片（报表快照）。
func (t *Telegram) SendPhoto(caption string, png []byte) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("Telegram 配置不完整")
	}
	if len(png) == 0 {
		return fmt.Errorf("图片内容为空")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", t.BotToken)

	return t.withRetry(func() error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("chat_id", t.ChatID)
		if caption != "" {
			_ = w.WriteField("caption", caption)
		}
		part, err := w.CreateFormFile("photo", "report.png")
		if err != nil {
			return err
		}
		if _, err := part.Write(png); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		req, err := http.NewRequest("POST", url, &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return t.do(req)
	})
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return nil
}

func (t *Telegram) withRetry(fn func() error) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}

package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 独立的 Provider 原始载荷日志：请求/响应全文落盘，便于事后排查投票分歧。
// 与主日志分离，避免大段 JSON 淹没运行日志。

var (
	dumpMu      sync.Mutex
	dumpLog     *log.Logger
	dumpEnabled bool
)

func SetDumpWriter(w io.Writer) {
	dumpMu.Lock()
	defer dumpMu.Unlock()
	if w == nil {
		dumpLog = nil
		return
	}
	dumpLog = log.New(w, "", log.LstdFlags)
}

func EnableProviderDump(enabled bool) {
	dumpMu.Lock()
	dumpEnabled = enabled
	dumpMu.Unlock()
}

type dumpSection struct {
	Title string
	Body  string
}

func writeDump(kind, provider string, sections []dumpSection) {
	dumpMu.Lock()
	l := dumpLog
	enabled := dumpEnabled
	dumpMu.Unlock()
	if l == nil || !enabled {
		return
	}
	var b strings.Builder
	b.WriteString("[provider]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if provider != "" {
		b.WriteString("[" + provider + "]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- " + title + " ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

func DumpProviderRequest(provider, system, user string) {
	writeDump("request", provider, []dumpSection{
		{Title: "SYSTEM", Body: system},
		{Title: "USER", Body: user},
	})
}

func DumpProviderResponse(provider, raw string) {
	writeDump("response", provider, []dumpSection{{Title: "RAW", Body: raw}})
}

// Package messages holds the fixed texts sent back to chats.
package messages

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultSupportChannelURL is linked from internal-error replies.
const DefaultSupportChannelURL = "https://t.me/joinchat/TPZF7pxnsnI25Olv"

// DefaultSupport is appended after every delivered asset.
const DefaultSupport = "If this bot helped you, please share it with your friends " +
	"and join the [support channel](" + DefaultSupportChannelURL + ")."

// InvalidURL is sent for links that cannot be resolved or parsed.
func InvalidURL(url string) string {
	return fmt.Sprintf("Invalid url - %s.\nPlease check the url and retry.", url)
}

// NotProvider is sent for links that resolve outside Pinterest.
func NotProvider(url string) string {
	return fmt.Sprintf("Not a Pinterest url - %s.\nPlease try with a Pinterest image or video URL.", url)
}

// Internal is sent for delivery and offload failures. It is Markdown; url is
// escaped so query strings like utm_source do not break entity parsing.
func Internal(url, supportChannelURL string) string {
	if supportChannelURL == "" {
		supportChannelURL = DefaultSupportChannelURL
	}
	return fmt.Sprintf(
		"Internal Error occured when downloading - %s.\n"+
			"For support contact - [Pinterest Downloader Support Channel](%s)",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, url), supportChannelURL)
}

// TooLarge tells the chat the video exceeds the bot upload limit and links
// the file directly. It is Markdown.
func TooLarge(videoURL string) string {
	return "Unable to send video here in chat this may be due to " +
		"Telegram Bots API send file [size limitation](https://core.telegram.org/bots/api#sending-files)\n" +
		"the video is too large for the bot to share here.\n" +
		fmt.Sprintf("*Please download video from* [here](%s)", videoURL)
}

// Blocked is sent to chats on the blocked list.
const Blocked = "You are Blocked and cannot use the bot anymore."

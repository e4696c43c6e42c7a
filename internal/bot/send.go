package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) SendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := b.Client.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) SendMarkdown(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	sent, err := b.Client.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) SendMessageWithButtons(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	sent, err := b.Client.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) EditMessageWithButtons(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	_, err := b.Client.Send(msg)
	return err
}

func (b *Bot) SendPhotoURL(chatID int64, photoURL, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	msg.Caption = caption
	_, err := b.Client.Send(msg)
	return err
}

func (b *Bot) SendAudioFile(chatID int64, path, caption string) error {
	msg := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
	msg.Caption = caption
	_, err := b.Client.Send(msg)
	return err
}

func (b *Bot) SendVideoFile(chatID int64, path, caption string) error {
	msg := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	msg.Caption = caption
	_, err := b.Client.Send(msg)
	return err
}

func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	_, err := b.Client.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// AnswerCallback acknowledges a button press. Non-empty text shows a toast.
func (b *Bot) AnswerCallback(callbackID, text string) error {
	_, err := b.Client.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

package notify

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ikigai/booking-engine/booking"
)

// Telegram delivers events over a Telegram bot: reservation-facing events
// go to the client chat (the client id is the chat id), review traffic goes
// to the admin chat.
type Telegram struct {
	bot         *tgbotapi.BotAPI
	adminChatID int64
}

func NewTelegram(token string, adminChatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, adminChatID: adminChatID}, nil
}

func (t *Telegram) Publish(event booking.Event) error {
	switch e := event.(type) {
	case booking.ReminderDue:
		return t.toClient(e.Reservation, reminderText(e))
	case booking.ReservationExpired:
		text := "Your reservation was cancelled for missing payment.\n" + recap(e.Reservation)
		if err := t.toClient(e.Reservation, text); err != nil {
			return err
		}
		return t.toAdmin("Reservation expired unpaid:\n" + recap(e.Reservation))
	case booking.PaymentPendingAdminReview:
		return t.toAdmin(fmt.Sprintf("Payment awaiting confirmation (%s):\n%s", e.Reservation.PaymentRef, recap(e.Reservation)))
	case booking.PaymentConfirmed:
		return t.toClient(e.Reservation, "Your reservation is confirmed and paid!\n"+recap(e.Reservation))
	case booking.PaymentRejected:
		return t.toClient(e.Reservation, "Your payment proof was rejected, please submit it again.\n"+recap(e.Reservation))
	default:
		return nil
	}
}

func (t *Telegram) toClient(r booking.Reservation, text string) error {
	chatID, err := strconv.ParseInt(r.ClientID, 10, 64)
	if err != nil {
		// Non-telegram client id; the admin channel still hears about it.
		return t.toAdmin(text)
	}
	return t.send(chatID, text)
}

func (t *Telegram) toAdmin(text string) error {
	return t.send(t.adminChatID, text)
}

func (t *Telegram) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func reminderText(e booking.ReminderDue) string {
	lead := "Please don't forget to pay for your reservation."
	if e.Level == 0 {
		if e.Source == booking.SourceStart {
			lead = "Your reservation starts soon - pay now to keep your place."
		} else {
			lead = "Final reminder: unpaid reservations are cancelled."
		}
	}
	return lead + "\n" + recap(e.Reservation)
}

func recap(r booking.Reservation) string {
	return fmt.Sprintf("Date: %s\nTime: %s - %s\nPlace: %d\nPrice: %s",
		r.Day.Format("02.01.2006"),
		r.TimeFrom.Format("15:04"),
		r.TimeTo.Format("15:04"),
		r.Place,
		r.Price.StringFixed(0),
	)
}

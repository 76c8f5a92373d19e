package conversation

import (
	"fmt"
	"strings"

	"regbot/internal/domain"
)

// Texts holds every user facing string of the registration dialog.
type Texts struct {
	Welcome         string
	Prompts         map[domain.State]string
	ChoiceConfirmed string // format with the chosen platform
	Completed       string
	Failed          string
	Cancelled       string
}

// DefaultTexts returns the Russian dialog.
func DefaultTexts() Texts {
	return Texts{
		Welcome: "Здравствуйте! Я бот для регистрации новых пользователей. " +
			"Давайте начнем. Введите ваше имя.",
		Prompts: map[domain.State]string{
			domain.StateAwaitLastName:         "Спасибо! Теперь введите вашу фамилию.",
			domain.StateAwaitPatronymic:       "Отлично! Введите ваше отчество.",
			domain.StateAwaitCustomerPhone:    "Теперь введите ваш телефон для связи (с заказчиком).",
			domain.StateAwaitContactPhone:     "Спасибо. А теперь телефон для связи с нами.",
			domain.StateAwaitOrganizationName: "Введите название вашей организации.",
			domain.StateAwaitSocialChoice:     "Выберите социальную сеть для привязки:",
		},
		ChoiceConfirmed: "Вы выбрали: %s. Теперь введите ваш ник или ID.",
		Completed:       "Спасибо! Ваша регистрация завершена.",
		Failed:          "Произошла ошибка при сохранении данных. Попробуйте позже.",
		Cancelled:       "Регистрация отменена.",
	}
}

func (t Texts) prompt(s domain.State) string {
	return t.Prompts[s]
}

func (t Texts) confirmChoice(platform string) string {
	return fmt.Sprintf(t.ChoiceConfirmed, platform)
}

// AdminNotice renders the summary sent to the operators chat.
func AdminNotice(id int64, rec domain.UserRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆕 Новая регистрация #%d\n\n", id)
	fmt.Fprintf(&sb, "👤 %s\n", rec.GetFullName())
	fmt.Fprintf(&sb, "🏢 %s\n", rec.OrganizationName)
	fmt.Fprintf(&sb, "📞 Заказчик: %s\n", rec.CustomerPhone)
	fmt.Fprintf(&sb, "📞 Связь: %s\n", rec.ContactPhone)
	fmt.Fprintf(&sb, "🌐 %s: %s", rec.SocialMediaPlatform, rec.SocialMediaHandle)
	return sb.String()
}

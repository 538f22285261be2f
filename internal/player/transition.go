package player

import "time"

// Effect is the entrance animation the rendering surface applies to an item.
type Effect string

const (
	FadeIn       Effect = "fadeIn"
	FadeInRight  Effect = "fadeInRight"
	FadeInLeft   Effect = "fadeInLeft"
	SlideInUp    Effect = "slideInUp"
	SlideInDown  Effect = "slideInDown"
	SlideInLeft  Effect = "slideInLeft"
	SlideInRight Effect = "slideInRight"
)

// TransitionDuration is the length of every entrance animation.
const TransitionDuration = 1500 * time.Millisecond

var transitions = map[string]Effect{
	"Fade In":        FadeIn,
	"Fade In Right":  FadeInRight,
	"Fade In Left":   FadeInLeft,
	"Slide In Up":    SlideInUp,
	"Slide In Down":  SlideInDown,
	"Slide In Left":  SlideInLeft,
	"Slide In Right": SlideInRight,
}

// EffectFor maps a playlist transition name to its effect. Unknown names fade.
func EffectFor(name string) Effect {
	if e, ok := transitions[name]; ok {
		return e
	}
	return FadeIn
}

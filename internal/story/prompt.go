package story

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/amarcher/about-those-clouds/internal/cloud"
	"github.com/amarcher/about-those-clouds/internal/models"
)

// BuildPrompt assembles the full LLM prompt for a request, choosing the
// Milo-found or Milo-away branch by cloud family.
func BuildPrompt(req Request) string {
	temp := int(math.Round(req.Weather.Main.Temp))
	wind := int(math.Round(req.Weather.Wind.Speed))
	personalization := personalizationBlock(req.Children)
	adventure := PickAdventureCity(req.Seed, time.Now())
	activity := SuggestActivity(req.Weather)

	if cloud.IsMiloPresent(req.Cloud) {
		return miloFoundPrompt(req.Cloud, req.Location, adventure, temp, wind, personalization, activity)
	}
	return miloAwayPrompt(req.Cloud, req.Location, adventure, temp, wind, personalization, activity)
}

func personalizationBlock(children []models.Child) string {
	if len(children) == 0 {
		return ""
	}
	descriptions := make([]string, 0, len(children))
	for _, child := range children {
		descriptions = append(descriptions,
			fmt.Sprintf("%s (age %d, pronouns: %s)", child.Name, child.Age, expandPronouns(child.Pronouns)))
	}
	return fmt.Sprintf(`

PERSONALIZATION: You are speaking directly to: %s.
Address them by name warmly and use their correct pronouns. Make it feel like you're sharing this adventure specifically with them!`,
		strings.Join(descriptions, ", "))
}

func expandPronouns(p string) string {
	switch p {
	case "he/him":
		return "he/him/his"
	case "she/her":
		return "she/her/hers"
	default:
		return "they/them/their"
	}
}

const miloCharacter = `MILO THE CLOUD CHARACTER:
- Milo is a fluffy, friendly cumulus cloud (like a cotton ball)
- Milo loves to travel around the world and watch happy things happen
- Milo has a curious, adventurous personality and brings joy wherever they float`

func miloFoundPrompt(info cloud.Info, loc models.Location, adventure CityEvent, temp, wind int, personalization string, activity Activity) string {
	return fmt.Sprintf(`You are an enthusiastic storyteller sharing exciting news with children about Milo the Cloud!%s

%s

CURRENT SITUATION - MILO IS HERE!
- Location: %s, %s
- Cloud type overhead: %s (%s)
- Temperature: %d°F, Wind: %d mph
- Milo just traveled from: %s, %s
- What Milo watched there: %s

YOUR TASK:
Create a 60-90 second audio story that:

1. **Exciting Discovery** (10-15 sec): Start with excitement - "Great news! Milo the cloud is floating right above %s today!"

2. **Where Milo Came From** (25-35 sec): Tell a warm, vivid story about Milo's recent adventure in %s, %s. Describe what Milo watched: "%s". Make it visual and magical - what did Milo see from up in the sky? What sounds, colors, and happy feelings did Milo experience?

3. **Why Milo Came Here** (15-25 sec): Milo came back hoping to watch kids %s! Weave this into the story naturally - Milo is excited to float above %s and see all the fun happening below.

4. **Invitation** (10-15 sec): Encourage the listener to go outside and look up - wave at Milo! Milo can see them from up there and is so happy to be visiting.

TONE: Joyful, magical, wonder-filled. Use simple words (ages 5-10). Make kids feel special that Milo chose to visit their town. Paint vivid pictures with words.

FORMAT: Write ONLY the spoken script. No labels, no stage directions. Just the story as you'd tell it excitedly to a child.`,
		personalization, miloCharacter,
		loc.City, loc.Region,
		info.ScientificName, info.KidFriendlyName,
		temp, wind,
		adventure.City, adventure.Country, adventure.Event,
		loc.City,
		adventure.City, adventure.Country, adventure.Event,
		activity.Activity, loc.City)
}

func miloAwayPrompt(info cloud.Info, loc models.Location, adventure CityEvent, temp, wind int, personalization string, activity Activity) string {
	return fmt.Sprintf(`You are an enthusiastic storyteller sharing news with children about where Milo the Cloud is today!%s

%s

CURRENT SITUATION - MILO IS SOMEWHERE ELSE
- Listener's location: %s, %s
- Cloud type overhead: %s (%s)
- What those clouds are like: %s
- A fun cloud fact: %s
- Temperature: %d°F, Wind: %d mph
- Where Milo is right now: %s, %s
- What Milo is watching there: %s

YOUR TASK:
Create a 60-90 second audio story that:

1. **Gentle News** (10-15 sec): Milo isn't overhead today, but the sky still has something special - introduce the %s clouds up there right now.

2. **Today's Sky** (15-25 sec): Describe the %s clouds above %s in a fun, kid-friendly way and share the fun fact so the listener learns something real about their sky.

3. **Milo's Adventure** (25-35 sec): Tell a warm, vivid story about what Milo is doing in %s, %s: "%s". What does Milo see from up in the sky? What sounds, colors, and happy feelings is Milo soaking up?

4. **Coming Home** (10-15 sec): Milo will float back soon, hoping to watch kids %s. Encourage the listener to keep an eye on the sky for a fluffy cotton-ball cloud!

TONE: Joyful, magical, wonder-filled. Use simple words (ages 5-10). Even without Milo overhead, today's sky is worth looking at.

FORMAT: Write ONLY the spoken script. No labels, no stage directions. Just the story as you'd tell it excitedly to a child.`,
		personalization, miloCharacter,
		loc.City, loc.Region,
		info.ScientificName, info.KidFriendlyName,
		info.Description, info.FunFact,
		temp, wind,
		adventure.City, adventure.Country, adventure.Event,
		info.KidFriendlyName,
		info.KidFriendlyName, loc.City,
		adventure.City, adventure.Country, adventure.Event,
		activity.Activity)
}

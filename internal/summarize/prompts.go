package summarize

import (
	"fmt"
	"strings"
)

const socPrompt = `You are a SOC analyst reviewing threat intelligence. Analyze the following security content and provide a concise summary focusing on:

1. **Immediate Threats**: What requires immediate attention?
2. **IOC Analysis**: Key indicators and their significance
3. **Recommended Actions**: Specific steps for SOC team
4. **Risk Assessment**: Threat level and potential impact

Keep it actionable and technical. Focus on what a SOC analyst needs to know right now.

Content to analyze:
%s

IOCs found: %s

Provide a clear, structured summary for SOC operations.`

const researcherPrompt = `You are a security researcher analyzing threat intelligence. Provide a detailed technical analysis focusing on:

1. **Technical Details**: TTPs, attack vectors, and methodologies
2. **Attribution**: Potential threat actor patterns
3. **IOC Context**: Technical significance of each indicator
4. **Research Insights**: Connections to known campaigns or families
5. **Further Research**: Areas requiring deeper investigation

Be thorough and technical. This is for security researchers who need comprehensive analysis.

Content to analyze:
%s

IOCs found: %s

Provide a detailed research-oriented analysis.`

const executivePrompt = `You are briefing executives on cybersecurity threats. Provide a high-level summary focusing on:

1. **Business Impact**: How this affects the organization
2. **Risk Level**: Clear assessment of threat severity
3. **Strategic Implications**: Long-term security considerations
4. **Resource Requirements**: What investment/actions are needed
5. **Timeline**: Urgency and expected duration of threat

Use business language, avoid technical jargon. Focus on decision-making information.

Content to analyze:
%s

Number of security indicators found: %d

Provide an executive-level threat briefing.`

// maxPromptContentLen caps the article content embedded in a prompt so a
// long article cannot blow up the request size.
const maxPromptContentLen = 2000

func renderPrompt(mode Mode, content string, indicators []IndicatorInfo) string {
	if len(content) > maxPromptContentLen {
		content = content[:maxPromptContentLen]
	}

	switch mode {
	case ModeExecutive:
		return fmt.Sprintf(executivePrompt, content, len(indicators))
	case ModeResearcher:
		return fmt.Sprintf(researcherPrompt, content, indicatorList(indicators))
	default:
		return fmt.Sprintf(socPrompt, content, indicatorList(indicators))
	}
}

func indicatorList(indicators []IndicatorInfo) string {
	if len(indicators) == 0 {
		return "None detected"
	}
	lines := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		lines = append(lines, fmt.Sprintf("- %s: %s", ind.Type, ind.Value))
	}
	return strings.Join(lines, "\n")
}

package orchestrator

import "codetutor/voicedebug/internal/types"

var languageExamples = map[types.Language]string{
    types.LanguagePython: `# Example Python code with an error
def greet_user(name):
    print("Hello " + name)
    return name.upper()

# This will cause an error
result = greet_user()  # Missing required argument
print(result)`,

    types.LanguageJavaScript: `// Example JavaScript code with an error
function calculateArea(radius) {
    return 3.14 * radius * radius;
}

// This will cause an error
let area = calculateArea();  // Missing required argument
console.log("Area is: " + area);`,

    types.LanguageJava: `// Example Java code with an error
public class Main {
    public static void main(String[] args) {
        String name;
        System.out.println("Hello " + name);  // Variable not initialized
    }
}`,

    types.LanguageCPP: `// Example C++ code with an error
#include <iostream>
using namespace std;

int main() {
    int numbers[5] = {1, 2, 3, 4, 5};
    cout << numbers[10] << endl;  // Array index out of bounds
    return 0;
}`,

    types.LanguageHTMLCSS: `<!-- Example HTML/CSS with an error -->
<!DOCTYPE html>
<html>
<head>
    <style>
        .container {
            color: blue;
            background-color: #fff
            /* Missing semicolon above */
        }
    </style>
</head>
<body>
    <div class="container">
        <p>Hello World!</p>
    </div>
</body>
</html>`,
}

// Example returns the starter snippet for a language, or "" if unknown.
func Example(l types.Language) string {
    return languageExamples[l]
}

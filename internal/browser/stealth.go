package browser

// stealthScript hides the common automation markers before any page script runs.
const stealthScript = `
(function() {
    Object.defineProperty(navigator, 'webdriver', {
        get: () => false,
        configurable: true
    });

    if (!window.chrome) {
        window.chrome = { runtime: {} };
    }

    Object.defineProperty(navigator, 'languages', {
        get: () => ['en-US', 'en'],
        configurable: true
    });

    const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
    if (originalQuery) {
        window.navigator.permissions.query = (parameters) => (
            parameters.name === 'notifications' ?
                Promise.resolve({ state: Notification.permission }) :
                originalQuery(parameters)
        );
    }
})();
`

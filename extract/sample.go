package extract

// SamplePolicyText is returned by the placeholder PDF and Word extractors.
const SamplePolicyText = `Employee Remote Work Policy

1. OVERVIEW
This policy outlines the guidelines for remote work arrangements for all employees of the company.

2. ELIGIBILITY
International employees are eligible for remote work with the following requirements:
- Must maintain overlap with core business hours (9 AM - 3 PM local time)
- Require manager approval for remote work arrangements
- Must have reliable internet connection and appropriate workspace
- Tax and legal compliance in the country of residence

3. APPROVAL PROCESS
All remote work requests must be submitted through the HR portal and approved by:
- Direct manager
- HR department
- Legal team (for international employees)

4. EQUIPMENT AND SECURITY
- Company will provide necessary equipment for remote work
- Employees must follow all security protocols
- VPN access required for all company systems
- Regular security training mandatory

5. PERFORMANCE EXPECTATIONS
- Maintain same productivity levels as in-office work
- Regular check-ins with supervisor
- Participate in all required meetings
- Meet all project deadlines

6. COMMUNICATION
- Must be available during agreed working hours
- Respond to communications within 4 hours during business hours
- Use company-approved communication tools

For specific international considerations, please consult with HR and Legal teams.`
